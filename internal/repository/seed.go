package repository

import (
	"time"

	"github.com/febril-severity-server/internal/domain"
)

type seedPatient struct {
	id         string
	daysAgo    int
	grupoEdad  string
	sexo       string
	severity   domain.Severity
	confidence float64
	triage     string
	hallazgo   string
	glasgow    int
}

// Demo caseload shown by the lite deployment. Ages are grouped the way the
// evaluation form groups them.
var seedPatients = []seedPatient{
	{"P-0421", 0, "2-5", "Femenino", domain.SeverityLeve, 96, "3", "Eritema orofaríngeo", 15},
	{"P-0420", 0, "Menor de 2", "Masculino", domain.SeverityModerada, 89, "2", "Taquipnea", 14},
	{"P-0419", 1, "2-5", "Femenino", domain.SeveritySevera, 93, "1", "Otro", 10},
	{"P-0418", 1, "2-5", "Masculino", domain.SeverityLeve, 97, "4", "Signos inflamatorios membrana timpánica", 15},
	{"P-0417", 2, "2-5", "Femenino", domain.SeverityModerada, 91, "3", "Ninguno", 15},
	{"P-0416", 2, "Menor de 2", "Masculino", domain.SeveritySevera, 95, "2", "Tirajes subcostales", 13},
	{"P-0415", 3, "6-12", "Femenino", domain.SeverityLeve, 94, "4", "Hipertrofia de amigdalas con placas purulentas", 15},
	{"P-0414", 3, "2-5", "Masculino", domain.SeverityLeve, 98, "3", "Eritema orofaríngeo", 15},
	{"P-0413", 4, "Menor de 2", "Femenino", domain.SeverityModerada, 87, "3", "Ninguno", 14},
	{"P-0412", 4, "6-12", "Masculino", domain.SeverityLeve, 96, "4", "Exudado purulento retrofaríngeo", 15},
	{"P-0411", 5, "2-5", "Femenino", domain.SeverityModerada, 88, "2", "Tirajes subcostales", 14},
	{"P-0410", 5, "2-5", "Masculino", domain.SeverityLeve, 95, "3", "Signos inflamatorios membrana timpánica", 15},
	{"P-0409", 6, "Menor de 2", "Femenino", domain.SeveritySevera, 92, "1", "Otro", 9},
	{"P-0408", 6, "2-5", "Masculino", domain.SeverityLeve, 97, "4", "Eritema orofaríngeo", 15},
	{"P-0407", 7, "2-5", "Femenino", domain.SeverityModerada, 90, "3", "Taquipnea", 14},
	{"P-0406", 7, "6-12", "Masculino", domain.SeverityLeve, 93, "3", "Ninguno", 15},
	{"P-0405", 8, "2-5", "Femenino", domain.SeverityLeve, 96, "4", "Hipertrofia de amigdalas con placas purulentas", 15},
	{"P-0404", 8, "13-17", "Masculino", domain.SeverityModerada, 86, "2", "Otro", 14},
	{"P-0403", 9, "Menor de 2", "Femenino", domain.SeverityLeve, 94, "4", "Eritema orofaríngeo", 15},
	{"P-0402", 9, "2-5", "Masculino", domain.SeveritySevera, 91, "1", "Otro", 11},
}

// SeedRecords builds the demo caseload owned by userID. Creation times are
// relative to now so the dashboard window always has data.
func SeedRecords(userID string, now time.Time) []domain.EvaluationRecord {
	records := make([]domain.EvaluationRecord, 0, len(seedPatients))
	for i, p := range seedPatients {
		// Later entries in a day were seen earlier
		created := now.AddDate(0, 0, -p.daysAgo).Add(-time.Duration(i%2) * 3 * time.Hour)
		records = append(records, domain.EvaluationRecord{
			ID:     p.id,
			UserID: userID,
			DatosPaciente: domain.PatientData{
				GrupoEdad:              p.grupoEdad,
				Sexo:                   p.sexo,
				Area:                   "Urban",
				TiempoFiebre:           2,
				Vacunacion:             "Completo",
				Antecedentes:           "Ninguno",
				ContactoEpidemiologico: "Ninguno",
				ExposicionAmbiental:    "Ninguno",
				EstadoNutricional:      "Normal",
				HallazgoExamenFisico:   p.hallazgo,
				Glasgow:                p.glasgow,
				Triage:                 p.triage,
			},
			Prediccion:       p.severity.Label(),
			PrediccionCodigo: p.severity,
			Probabilidades:   seedProbabilities(p.severity, p.confidence),
			Factores:         []string{},
			Confianza:        p.confidence,
			CreatedAt:        created,
		})
	}
	return records
}

// seedProbabilities gives the predicted class its confidence and splits the
// rest evenly.
func seedProbabilities(s domain.Severity, confidence float64) domain.Probabilities {
	rest := (100 - confidence) / 2
	p := domain.Probabilities{Leve: rest, Moderada: rest, Severa: rest}
	switch s {
	case domain.SeverityLeve:
		p.Leve = confidence
	case domain.SeverityModerada:
		p.Moderada = confidence
	case domain.SeveritySevera:
		p.Severa = confidence
	}
	return p
}

// Seed loads the demo caseload into the store.
func (s *MemoryEvaluationStore) Seed(userID string) {
	records := SeedRecords(userID, s.now())

	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()

	s.log.WithField("count", len(records)).Info("Seeded demo evaluations")
}
