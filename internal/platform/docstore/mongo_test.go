package docstore

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRecordFromBSON(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := bson.M{
		"_id":        "p-1",
		"name":       "Ravi",
		"no_of_days": int32(3),
		"admitted":   primitive.NewDateTimeFromTime(at),
		"contact":    bson.D{{Key: "phone", Value: "555"}},
		"tags":       bson.A{"vip", bson.M{"k": "v"}},
	}

	r := recordFromBSON(doc)
	if r.ID != "p-1" {
		t.Errorf("expected id p-1, got %s", r.ID)
	}
	if _, ok := r.Fields["_id"]; ok {
		t.Error("_id must not leak into fields")
	}
	if r.Fields["no_of_days"] != int64(3) {
		t.Errorf("expected int64 3, got %#v", r.Fields["no_of_days"])
	}
	if got, ok := r.Fields["admitted"].(time.Time); !ok || !got.Equal(at) {
		t.Errorf("expected admitted %v, got %#v", at, r.Fields["admitted"])
	}
	contact, ok := r.Fields["contact"].(map[string]any)
	if !ok || contact["phone"] != "555" {
		t.Errorf("expected nested map, got %#v", r.Fields["contact"])
	}
	tags, ok := r.Fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("expected []any tags, got %#v", r.Fields["tags"])
	}
	if _, ok := tags[1].(map[string]any); !ok {
		t.Errorf("expected nested map inside array, got %#v", tags[1])
	}
}

func TestRecordFromBSON_ObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	r := recordFromBSON(bson.M{"_id": oid.Hex(), "ref": oid})
	if r.Fields["ref"] != oid.Hex() {
		t.Errorf("expected hex object id, got %#v", r.Fields["ref"])
	}
}
