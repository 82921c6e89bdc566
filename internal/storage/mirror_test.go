package storage

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/IshaanNene/AutoHarvest/internal/types"
)

func mirrorRecord() *types.Record {
	rec := types.NewRecord("https://mado.group/statistic-china/lot-1/", "Toyota Camry")
	rec.Set("year", "2021")
	rec.Set("fuel_type", types.NotFound)
	rec.Status = types.StatusSuccess
	return rec
}

func TestMongoUpsert(t *testing.T) {
	cycle := types.NewCycle(3, types.ModeIncremental)
	rec := mirrorRecord()

	m := mongoUpsert(cycle, rec)
	if m.Upsert == nil || !*m.Upsert {
		t.Error("expected upsert to be enabled")
	}

	filter, ok := m.Filter.(bson.M)
	if !ok || filter[types.ColumnURL] != rec.URL {
		t.Errorf("filter = %v", m.Filter)
	}

	update, ok := m.Update.(bson.M)
	if !ok {
		t.Fatalf("update has type %T", m.Update)
	}
	doc, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatalf("$set has type %T", update["$set"])
	}
	for key, want := range map[string]any{
		"year":            "2021",
		"fuel_type":       string(types.NotFound),
		types.ColumnTitle: "Toyota Camry",
		"_cycle":          cycle.ID,
		"_status":         "success",
		"_harvested_at":   rec.HarvestedAt,
	} {
		if doc[key] != want {
			t.Errorf("%s = %v, want %v", key, doc[key], want)
		}
	}
}

func TestPostgresArgs(t *testing.T) {
	rec := mirrorRecord()

	args := postgresArgs(rec)
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[0] != rec.URL || args[1] != "Toyota Camry" || args[3] != rec.HarvestedAt {
		t.Errorf("args = %v", args)
	}
	fields, ok := args[2].(map[string]string)
	if !ok {
		t.Fatalf("fields has type %T", args[2])
	}
	if fields["year"] != "2021" || fields[types.ColumnURL] != rec.URL {
		t.Errorf("fields = %v", fields)
	}

	query := upsertQuery(pgx.Identifier{"cars"}.Sanitize())
	if !strings.Contains(query, `INSERT INTO "cars"`) || !strings.Contains(query, "ON CONFLICT (url) DO UPDATE") {
		t.Errorf("query = %s", query)
	}
}
