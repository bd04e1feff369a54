// Package taxonomy holds the fixed three-level classification of lab work:
// macro category -> subcategory -> activity. The catalog is static data;
// user input is validated against it instead of being trusted.
package taxonomy

import "fmt"

type Subcategory struct {
	Name       string
	Activities []string
}

type Macro struct {
	Name          string
	Subcategories []Subcategory
}

// Catalog is the full classification, in display order.
var Catalog = []Macro{
	{Name: "AGENDA", Subcategories: []Subcategory{
		{Name: "Gestione agenda appuntamenti e telefono", Activities: []string{
			"Informazioni analisi",
			"Telefonate in entrata",
			"Telefonate in uscita",
			"Comunicazione con pazienti (mail o telefono)",
			"Organizzazione appuntamenti con medici",
			"Supporto amministrativo (se pertinente)",
			"Prenotazioni",
		}},
		{Name: "Controllo e-mail e risposta", Activities: []string{
			"Prenotazioni",
			"Informazioni analisi",
			"Richieste varie",
		}},
	}},
	{Name: "CONSULENZA GENETICA", Subcategories: []Subcategory{
		{Name: "Ambulatorio", Activities: []string{
			"Consulenza",
			"Controllo Impegnative",
			"Relazioni consulenza",
		}},
		{Name: "Teleconsulenza", Activities: []string{
			"Consulenza Telefonica",
			"Relazione Post-test",
		}},
	}},
	{Name: "ACCETTAZIONE", Subcategories: []Subcategory{
		{Name: "Accettazione campioni e impegnative", Activities: []string{
			"Accettazione campioni interni",
			"Accettazione campioni esterni",
			"Registrazione impegnative access",
			"Conteggio impegnative (mensile)",
		}},
	}},
	{Name: "ORDINI E MAGAZZINO", Subcategories: []Subcategory{
		{Name: "Gestione Ordini Reagenti e varie", Activities: []string{
			"Richiesta preventivo",
			"Ordine SAP",
			"Verifica arrivi DDT",
			"Controllo Giacenza",
		}},
	}},
	{Name: "LABORATORIO", Subcategories: []Subcategory{
		{Name: "Lavoro al bancone", Activities: []string{
			"Estrazione DNA",
			"Preparazione reagenti",
			"Analisi molecolare",
			"Digestioni",
			"Blot",
			"Ibridazioni",
		}},
		{Name: "Manutenzione strumenti", Activities: []string{
			"Pulizia ABI e/o cambio capillari",
			"Pulizia NextSeq",
			"Pulizia MiSeq",
		}},
	}},
	{Name: "INFORMATICA", Subcategories: []Subcategory{
		{Name: "Backup Dati", Activities: []string{"Scarico Dati"}},
		{Name: "Programmazione", Activities: []string{"Programmazione"}},
		{Name: "Interpretazione dati grezzi", Activities: []string{
			"Analisi dati NGS",
			"Match OA",
			"Interpretazione analisi Sanger",
			"Interpretazione analisi MLPA",
			"Interpretazione analisi Microsatelliti",
			"Interpretazione analisi Metilazione",
			"Lettura e interpretazione Lastre",
		}},
	}},
	{Name: "REFERTAZIONE", Subcategories: []Subcategory{
		{Name: "Compilazione referti", Activities: []string{
			"Calcolo coverage e OMIM",
			"Stesura bozza referto",
		}},
		{Name: "Rilettura e validazione referti", Activities: []string{
			"NGS",
			"Analisi di sequenza (Trombofilia, Segregazioni mut)",
			"MLPA",
			"Analisi di frammenti (FC, Trombofilia, ecc.)",
			"FSHD",
		}},
	}},
	{Name: "ATTIVITA' DIDATTICA", Subcategories: []Subcategory{
		{Name: "Lezioni", Activities: []string{"Lezioni"}},
		{Name: "Esami", Activities: []string{"Esami"}},
		{Name: "Correzione tesi", Activities: []string{"Correzione tesi"}},
		{Name: "Slide", Activities: []string{"Slide"}},
	}},
	{Name: "RICERCA", Subcategories: []Subcategory{
		{Name: "Articolo scientifico", Activities: []string{"Scrittura", "Revisione", "Sottomissione"}},
	}},
}

// Names used by the reporting breakdowns.
const (
	MacroReporting = "REFERTAZIONE"
	MacroAccession = "ACCETTAZIONE"

	SubReportDraft  = "Compilazione referti"
	SubReportReview = "Rilettura e validazione referti"
)

// MacroNames returns the macro categories in catalog order.
func MacroNames() []string {
	names := make([]string, len(Catalog))
	for i, m := range Catalog {
		names[i] = m.Name
	}
	return names
}

// Find returns the macro entry with the given name.
func Find(macro string) (Macro, bool) {
	for _, m := range Catalog {
		if m.Name == macro {
			return m, true
		}
	}
	return Macro{}, false
}

// Subcategories returns the subcategory names declared under a macro.
func Subcategories(macro string) []string {
	m, ok := Find(macro)
	if !ok {
		return nil
	}
	names := make([]string, len(m.Subcategories))
	for i, s := range m.Subcategories {
		names[i] = s.Name
	}
	return names
}

// Activities returns the activity labels declared under a (macro,
// subcategory) pair.
func Activities(macro, subcategory string) []string {
	m, ok := Find(macro)
	if !ok {
		return nil
	}
	for _, s := range m.Subcategories {
		if s.Name == subcategory {
			return append([]string(nil), s.Activities...)
		}
	}
	return nil
}

// Validate checks that the triple exists in the catalog.
func Validate(macro, subcategory, activity string) error {
	m, ok := Find(macro)
	if !ok {
		return fmt.Errorf("unknown macro category %q", macro)
	}
	for _, s := range m.Subcategories {
		if s.Name != subcategory {
			continue
		}
		for _, a := range s.Activities {
			if a == activity {
				return nil
			}
		}
		return fmt.Errorf("unknown activity %q under %q / %q", activity, macro, subcategory)
	}
	return fmt.Errorf("unknown subcategory %q under %q", subcategory, macro)
}
