package taxonomy

import "testing"

func TestCatalogOrdering(t *testing.T) {
	names := MacroNames()
	if len(names) != len(Catalog) {
		t.Fatalf("Expected %d macro names, got %d", len(Catalog), len(names))
	}
	if names[0] != "AGENDA" {
		t.Errorf("Expected first macro AGENDA, got %s", names[0])
	}
	if names[len(names)-1] != "RICERCA" {
		t.Errorf("Expected last macro RICERCA, got %s", names[len(names)-1])
	}

	subs := Subcategories(MacroReporting)
	if len(subs) != 2 || subs[0] != SubReportDraft || subs[1] != SubReportReview {
		t.Errorf("Unexpected reporting subcategories: %v", subs)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("LABORATORIO", "Lavoro al bancone", "Estrazione DNA"); err != nil {
		t.Errorf("Valid triple rejected: %v", err)
	}

	if err := Validate("LABORATORIO", "Lavoro al bancone", "Stesura bozza referto"); err == nil {
		t.Error("Activity from another subcategory was accepted")
	}
	if err := Validate("LABORATORIO", "Ambulatorio", "Consulenza"); err == nil {
		t.Error("Subcategory from another macro was accepted")
	}
	if err := Validate("CUCINA", "Lavoro al bancone", "Estrazione DNA"); err == nil {
		t.Error("Unknown macro was accepted")
	}
}

func TestEveryDeclaredTripleValidates(t *testing.T) {
	for _, m := range Catalog {
		for _, s := range m.Subcategories {
			if len(s.Activities) == 0 {
				t.Errorf("Subcategory %s/%s has no activities", m.Name, s.Name)
			}
			for _, a := range s.Activities {
				if err := Validate(m.Name, s.Name, a); err != nil {
					t.Errorf("Catalog triple failed validation: %v", err)
				}
			}
		}
	}
}

func TestActivitiesLookup(t *testing.T) {
	acts := Activities("RICERCA", "Articolo scientifico")
	if len(acts) != 3 {
		t.Fatalf("Expected 3 research activities, got %d", len(acts))
	}
	if Activities("RICERCA", "Lezioni") != nil {
		t.Error("Expected nil for subcategory outside its macro")
	}
}
