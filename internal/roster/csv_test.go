package roster

import (
	"strings"
	"testing"

	"RosterMail/internal/models"
)

const sample = `id,Name,Email,Gender,Department,Position,Boss_Name,Boss_Email
r1,Ana Pérez,aperez@example.cl,Femenino,Finanzas,Analista,Carla Núñez,cnunez@example.cl
r2,Juan Rojas,jrojas@example.cl,M,Informática,Desarrollador,,
,Sin Id,sinid@example.cl,,,,,
r4,Sin Correo,,,,,,
malformada,solo,tres
`

func TestLoadCSV(t *testing.T) {
	got, err := LoadCSV(strings.NewReader(sample), 0)
	if err != nil {
		t.Fatal(err)
	}
	// r4 has no email, the malformed row has the wrong arity
	if len(got) != 3 {
		t.Fatalf("recipients = %d, want 3", len(got))
	}
	if got[0].ID != "r1" || got[0].Gender != models.GenderFemale || got[0].BossEmail != "cnunez@example.cl" {
		t.Errorf("r1 = %+v", got[0])
	}
	if got[1].Gender != models.GenderMale {
		t.Errorf("r2 gender = %q", got[1].Gender)
	}
	if got[2].ID != "row-3" {
		t.Errorf("fallback id = %q", got[2].ID)
	}
	if got[2].Gender != models.GenderUnspecified {
		t.Errorf("default gender = %q", got[2].Gender)
	}
}

func TestLoadCSVMaxRows(t *testing.T) {
	got, err := LoadCSV(strings.NewReader(sample), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("recipients = %+v", got)
	}
}

func TestLoadCSVRequiredColumns(t *testing.T) {
	if _, err := LoadCSV(strings.NewReader("name,phone\nx,123\n"), 0); err == nil {
		t.Error("expected error for missing email column")
	}
	if _, err := LoadCSV(strings.NewReader("email,phone\nx@y.cl,123\n"), 0); err == nil {
		t.Error("expected error for missing name column")
	}
	if _, err := LoadCSV(strings.NewReader("name,email\n"), 0); err == nil {
		t.Error("expected error for empty roster")
	}
}
