package sbom

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testCommit = "93912d42229dba50cb1b1e0353ab5b7bb66dc7b7"

// writeSBOM creates {name}-{version}.dist-info/sboms/sbom.spdx.json under dir.
func writeSBOM(t *testing.T, dir, name, version string, doc map[string]any) {
	t.Helper()
	sbomsDir := filepath.Join(dir, name+"-"+version+".dist-info", "sboms")
	if err := os.MkdirAll(sbomsDir, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sbomsDir, "sbom.spdx.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func flaskSBOM() map[string]any {
	return map[string]any{
		"spdxVersion": "SPDX-2.3",
		"creationInfo": map[string]any{
			"creators": []string{"Organization: Chainguard, Inc", "Tool: melange"},
			"created":  "2025-06-01T12:00:00Z",
		},
		"packages": []any{
			map[string]any{
				"name":             "flask",
				"sourceInfo":       "git+https://github.com/pallets/flask, tag: 3.1.2, commit id: " + testCommit + ", patches: cve-2025-0001.patch, build-fix.patch",
				"downloadLocation": "git+https://github.com/pallets/flask@" + testCommit,
			},
		},
	}
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	writeSBOM(t, dir, "flask", "3.1.2", flaskSBOM())

	doc, err := NewStore(dir).LoadDocument("flask")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if doc["spdxVersion"] != "SPDX-2.3" {
		t.Errorf("spdxVersion = %v", doc["spdxVersion"])
	}
}

func TestLoadDocument_PackageNotFound(t *testing.T) {
	_, err := NewStore(t.TempDir()).LoadDocument("ghost")
	if !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("LoadDocument() error = %v, want ErrPackageNotFound", err)
	}
}

func TestLoadDocument_NoSBOM(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "flask-3.1.2.dist-info"), 0755); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore(dir).LoadDocument("flask")
	if !errors.Is(err, ErrSBOMNotFound) {
		t.Errorf("LoadDocument() error = %v, want ErrSBOMNotFound", err)
	}
}

func TestFindDistInfo_HighestVersionWins(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []string{"3.1.10", "3.1.2", "3.1.9"} {
		if err := os.MkdirAll(filepath.Join(dir, "flask-"+v+".dist-info"), 0755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := NewStore(dir).FindDistInfo("flask")
	if err != nil {
		t.Fatalf("FindDistInfo() error = %v", err)
	}
	// PEP 440 ordering: 3.1.10 > 3.1.9, which lexical sorting gets wrong.
	if filepath.Base(got) != "flask-3.1.10.dist-info" {
		t.Errorf("FindDistInfo() = %q, want flask-3.1.10.dist-info", got)
	}
}

func TestSourceInfosAndAttachResolution(t *testing.T) {
	dir := t.TempDir()
	writeSBOM(t, dir, "flask", "3.1.2", flaskSBOM())

	store := NewStore(dir)
	doc, err := store.LoadDocument("flask")
	if err != nil {
		t.Fatal(err)
	}

	infos := SourceInfos(doc)
	if len(infos) != 1 {
		t.Fatalf("SourceInfos() = %v, want one entry", infos)
	}

	AttachResolution(doc, 0, "fffffffffffffffffffffffffffffffffffffffe", true)
	entry := doc["packages"].([]any)[0].(map[string]any)
	if entry["_resolved_commit_sha"] != "fffffffffffffffffffffffffffffffffffffffe" {
		t.Errorf("_resolved_commit_sha = %v", entry["_resolved_commit_sha"])
	}
	if entry["_commit_resolved"] != true {
		t.Errorf("_commit_resolved = %v", entry["_commit_resolved"])
	}
}

func TestExtractProvenance(t *testing.T) {
	dir := t.TempDir()
	writeSBOM(t, dir, "flask", "3.1.2", flaskSBOM())

	prov, err := NewStore(dir).ExtractProvenance("flask")
	if err != nil {
		t.Fatalf("ExtractProvenance() error = %v", err)
	}
	if prov == nil || !prov.HasSBOM {
		t.Fatalf("Provenance = %+v, want HasSBOM", prov)
	}
	if prov.Creator != "Organization: Chainguard, Inc, Tool: melange" {
		t.Errorf("Creator = %q", prov.Creator)
	}
	if prov.Created != "2025-06-01T12:00:00Z" {
		t.Errorf("Created = %q", prov.Created)
	}
	if len(prov.Patches) != 2 || prov.Patches[0] != "cve-2025-0001.patch" {
		t.Errorf("Patches = %v", prov.Patches)
	}
	if prov.SourceRepo != "https://github.com/pallets/flask" {
		t.Errorf("SourceRepo = %q", prov.SourceRepo)
	}
	if prov.CommitID != testCommit {
		t.Errorf("CommitID = %q", prov.CommitID)
	}
}

func TestExtractProvenance_MissingSBOMIsNil(t *testing.T) {
	prov, err := NewStore(t.TempDir()).ExtractProvenance("ghost")
	if err != nil {
		t.Fatalf("ExtractProvenance() error = %v", err)
	}
	if prov != nil {
		t.Errorf("Provenance = %+v, want nil", prov)
	}
}

func TestInventory(t *testing.T) {
	dir := t.TempDir()
	writeSBOM(t, dir, "flask", "3.1.2", flaskSBOM())
	for _, d := range []string{"pip-24.0.dist-info", "click-8.3.0.dist-info"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			t.Fatal(err)
		}
	}

	packages, err := NewStore(dir).Inventory()
	if err != nil {
		t.Fatalf("Inventory() error = %v", err)
	}

	// pip skipped; sorted by name.
	if len(packages) != 2 {
		t.Fatalf("Inventory() = %d packages, want 2", len(packages))
	}
	if packages[0].Name != "click" || packages[1].Name != "flask" {
		t.Errorf("order = %s, %s", packages[0].Name, packages[1].Name)
	}
	if packages[0].Provenance != nil {
		t.Errorf("click provenance = %+v, want nil without SBOM", packages[0].Provenance)
	}
	if packages[1].Provenance == nil || !packages[1].Provenance.HasSBOM {
		t.Errorf("flask provenance = %+v, want SBOM facts", packages[1].Provenance)
	}
	if !packages[1].ValidVersion {
		t.Error("flask ValidVersion = false, want true")
	}
}

func TestParsePatches(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"two patches", "tag: 1.0, patches: a.patch, b.patch", 2},
		{"no marker", "tag: 1.0", 0},
		{"empty list", "patches: ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePatches(tt.input); len(got) != tt.want {
				t.Errorf("parsePatches(%q) = %v, want %d entries", tt.input, got, tt.want)
			}
		})
	}
}
