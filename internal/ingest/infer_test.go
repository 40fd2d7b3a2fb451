package ingest

import (
	"database/sql"
	"testing"
)

func TestInferTypes(t *testing.T) {
	ds := Dataset{
		Columns: []string{"id", "price", "verified", "name", "empty", "mixed"},
		Rows: [][]sql.NullString{
			cells("1", "9.5", "True", "alpha", "", "1"),
			cells("2", "10", "false", "beta", "", "x"),
			cells("", "", "", "", "", ""),
		},
	}
	want := []ColumnType{TypeBigInt, TypeDouble, TypeBoolean, TypeText, TypeText, TypeText}
	got := InferTypes(ds)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("InferTypes()[%d] (%s) = %s, want %s", i, ds.Columns[i], got[i], want[i])
		}
	}
}

func TestConvert(t *testing.T) {
	if v, err := Convert(sql.NullString{}, TypeBigInt); err != nil || v != nil {
		t.Fatalf("Convert(NULL) = %v, %v", v, err)
	}
	if v, err := Convert(valid(" 42 "), TypeBigInt); err != nil || v != int64(42) {
		t.Fatalf("Convert(int) = %#v, %v", v, err)
	}
	if v, err := Convert(valid("2.5"), TypeDouble); err != nil || v != 2.5 {
		t.Fatalf("Convert(double) = %#v, %v", v, err)
	}
	if v, err := Convert(valid("TRUE"), TypeBoolean); err != nil || v != true {
		t.Fatalf("Convert(bool) = %#v, %v", v, err)
	}
	if v, err := Convert(valid(" keep spaces "), TypeText); err != nil || v != " keep spaces " {
		t.Fatalf("Convert(text) = %#v, %v", v, err)
	}
	if _, err := Convert(valid("maybe"), TypeBoolean); err == nil {
		t.Fatal("Convert(bad bool) expected error")
	}
}

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// cells builds a row; "" becomes NULL.
func cells(values ...string) []sql.NullString {
	row := make([]sql.NullString, len(values))
	for i, v := range values {
		if v != "" {
			row[i] = valid(v)
		}
	}
	return row
}
