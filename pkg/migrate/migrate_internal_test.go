package migrate

import (
	"io/fs"
	"testing"
)

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embeddedFiles, err := fs.Glob(embedded, EmbeddedDir+"/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(embeddedFiles) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %v", embeddedFiles)
	}
}

func TestPrepareRequiresDB(t *testing.T) {
	if err := prepare(nil, EmbeddedDir); err == nil {
		t.Fatal("expected error without a db")
	}
}
