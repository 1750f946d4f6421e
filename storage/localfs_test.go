package storage

import (
	"context"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()

	if err := fs.Write(ctx, "a/b/c.bin", "", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Read(ctx, "a/b/c.bin")
	if err != nil || string(got) != "payload" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestReadMissingFails(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if _, err := fs.Read(context.Background(), "missing"); err != ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestDeleteFileIsNoopWhenMissing(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if err := fs.DeleteFile(context.Background(), "nope"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestListFilesLexicographicAndPagination(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b", "e", "d"} {
		if err := fs.Write(ctx, "dir/"+name, "", []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	page1, err := fs.ListFiles(ctx, "dir", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Names) != 2 || page1.Names[0] != "a" || page1.Names[1] != "b" {
		t.Fatalf("page1 = %v", page1.Names)
	}
	if page1.Next != "b" {
		t.Fatalf("next = %q", page1.Next)
	}

	page2, err := fs.ListFiles(ctx, "dir", 2, page1.Next)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Names) != 2 || page2.Names[0] != "c" || page2.Names[1] != "d" {
		t.Fatalf("page2 = %v", page2.Names)
	}

	page3, err := fs.ListFiles(ctx, "dir", 2, page2.Next)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Names) != 1 || page3.Names[0] != "e" {
		t.Fatalf("page3 = %v", page3.Names)
	}
	if page3.Next != "" {
		t.Fatalf("expected no further pages, got %q", page3.Next)
	}
}

func TestListDirsImmediateChildrenOnly(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()

	fs.Write(ctx, "root/child1/deep/file", "", []byte("x"))
	fs.Write(ctx, "root/child2/file", "", []byte("x"))

	listing, err := fs.ListDirs(ctx, "root", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Names) != 2 || listing.Names[0] != "child1" || listing.Names[1] != "child2" {
		t.Fatalf("got %v", listing.Names)
	}
}

func TestIsEmptyAndDirExists(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()

	empty, err := fs.IsEmpty(ctx, "nosuchdir")
	if err != nil || !empty {
		t.Fatalf("empty=%v err=%v", empty, err)
	}

	fs.Write(ctx, "occupied/file", "", []byte("x"))
	ok, err := fs.DirExists(ctx, "occupied")
	if err != nil || !ok {
		t.Fatalf("DirExists = %v, %v", ok, err)
	}
	empty, err = fs.IsEmpty(ctx, "occupied")
	if err != nil || empty {
		t.Fatalf("expected non-empty, got %v, %v", empty, err)
	}
}

func TestCopyTo(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()

	fs.Write(ctx, "src", "", []byte("original"))
	if err := fs.CopyTo(ctx, "src", "dst"); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Read(ctx, "dst")
	if err != nil || string(got) != "original" {
		t.Fatalf("got %q, %v", got, err)
	}
}
