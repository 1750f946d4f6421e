package strata

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestRecordIDAndWithID(t *testing.T) {
	r := Record{"name": "ferris"}
	if r.ID() != "" {
		t.Fatalf("expected empty id, got %q", r.ID())
	}
	r2 := r.WithID("abc")
	if r2.ID() != "abc" {
		t.Fatalf("got %q", r2.ID())
	}
	if r.ID() != "" {
		t.Fatal("WithID must not mutate the receiver")
	}
}

func TestRecordMergeShallow(t *testing.T) {
	base := Record{"_id": "x", "name": "a", "tags": []string{"one"}}
	merged := base.merge(Record{"name": "b", "score": 5})
	if merged["name"] != "b" || merged["score"] != 5 {
		t.Fatalf("merge result = %#v", merged)
	}
	if base["name"] != "a" {
		t.Fatal("merge must not mutate the receiver")
	}
}

func TestValidateID(t *testing.T) {
	if err := validateID("00000000-0000-0000-0000-000000000000"); err != nil {
		t.Fatal(err)
	}
	if err := validateID("not-a-uuid"); err == nil {
		t.Fatal("expected ErrInvalidID")
	}
}

func TestBodyBytesElidesID(t *testing.T) {
	r := Record{"_id": "abc", "name": "ferris"}
	body, err := r.bodyBytes()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bson.Raw(body).LookupErr(IDField); err == nil {
		t.Fatal("expected _id elided from the encoded body")
	}
	out, err := recordFromBody("abc", body)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID() != "abc" || out["name"] != "ferris" {
		t.Fatalf("round trip = %#v", out)
	}
	if _, ok := out["_id"]; !ok {
		t.Fatal("expected _id reattached")
	}
}

func TestFieldValueAbsent(t *testing.T) {
	r := Record{"_id": "abc"}
	if _, ok := r.fieldValue("score"); ok {
		t.Fatal("expected absent field to report ok=false")
	}
}
