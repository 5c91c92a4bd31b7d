package domain

import (
	"time"
)

// Disclaimer accompanies every prediction shown to a clinician.
const Disclaimer = "Esta herramienta es de apoyo a la decisión clínica y no reemplaza " +
	"el juicio médico profesional. Los resultados deben ser interpretados " +
	"por personal médico calificado en el contexto clínico del paciente."

// PatientData is the set of clinical inputs captured by the evaluation form.
// Laboratory values are optional and travel as JSON null when absent.
type PatientData struct {
	GrupoEdad              string   `json:"grupo_edad" binding:"required"`
	Sexo                   string   `json:"sexo" binding:"required"`
	Area                   string   `json:"area" binding:"required"`
	TiempoFiebre           int      `json:"tiempo_fiebre" binding:"min=0,max=60"`
	Vacunacion             string   `json:"vacunacion" binding:"required"`
	Antecedentes           string   `json:"antecedentes" binding:"required"`
	ContactoEpidemiologico string   `json:"contacto_epidemiologico" binding:"required"`
	ExposicionAmbiental    string   `json:"exposicion_ambiental" binding:"required"`
	EstadoNutricional      string   `json:"estado_nutricional" binding:"required"`
	HallazgoExamenFisico   string   `json:"hallazgo_examen_fisico" binding:"required"`
	Glasgow                int      `json:"glasgow" binding:"required,min=3,max=15"`
	Triage                 string   `json:"triage,omitempty"`
	Cayados                *float64 `json:"cayados" binding:"omitempty,min=0"`
	Plaquetas              *float64 `json:"plaquetas" binding:"omitempty,min=0"`
	Albumina               *float64 `json:"albumina" binding:"omitempty,min=0"`
	Globulina              *float64 `json:"globulina" binding:"omitempty,min=0"`
	Procalcitonina         *float64 `json:"procalcitonina" binding:"omitempty,min=0"`
	Leucocitos             *float64 `json:"leucocitos" binding:"omitempty,min=0"`
	PCR                    *float64 `json:"pcr" binding:"omitempty,min=0"`
}

// Category option sets accepted by the model backend.
var (
	AgeGroups         = []string{"Menor de 2", "2-5", "6-12", "13-17"}
	Sexes             = []string{"Femenino", "Masculino"}
	Areas             = []string{"Urban", "Rural"}
	VaccinationStates = []string{"Completo", "Incompleto"}
	PriorConditions   = []string{
		"Ninguno", "Asma", "Bronquiolitis", "Neumonía adquirida en la comunidad",
		"Otitis media aguda", "Pretérmino", "Otro",
	}
	EpidemiologicalContacts = []string{"Ninguno", "Rinofaringitis", "Sinusitis", "Otro"}
	EnvironmentalExposures  = []string{
		"Ninguno", "Polución ambiental", "Polvo casero", "Preservativos químicos", "Tabaquismo",
	}
	NutritionalStates = []string{"Normal", "Riesgo de desnutrición", "Otro"}
	ExamFindings      = []string{
		"Ninguno", "Eritema orofaríngeo", "Exudado purulento retrofaríngeo",
		"Hipertrofia de amigdalas con placas purulentas",
		"Signos inflamatorios membrana timpánica", "Taquipnea", "Tirajes subcostales", "Otro",
	}
)

// Validate checks ranges and category membership. It returns the first
// offending field as a *ValidationError.
func (p *PatientData) Validate() error {
	if p.Glasgow < 3 || p.Glasgow > 15 {
		return NewValidationError("glasgow", "Glasgow debe estar entre 3 y 15", p.Glasgow)
	}
	if p.TiempoFiebre < 0 || p.TiempoFiebre > 60 {
		return NewValidationError("tiempo_fiebre", "El tiempo de fiebre debe estar entre 0 y 60 días", p.TiempoFiebre)
	}

	categories := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"grupo_edad", p.GrupoEdad, AgeGroups},
		{"sexo", p.Sexo, Sexes},
		{"area", p.Area, Areas},
		{"vacunacion", p.Vacunacion, VaccinationStates},
		{"antecedentes", p.Antecedentes, PriorConditions},
		{"contacto_epidemiologico", p.ContactoEpidemiologico, EpidemiologicalContacts},
		{"exposicion_ambiental", p.ExposicionAmbiental, EnvironmentalExposures},
		{"estado_nutricional", p.EstadoNutricional, NutritionalStates},
		{"hallazgo_examen_fisico", p.HallazgoExamenFisico, ExamFindings},
	}
	for _, c := range categories {
		if !contains(c.allowed, c.value) {
			return NewValidationError(c.field, "valor no permitido", c.value)
		}
	}

	labs := map[string]*float64{
		"cayados": p.Cayados, "plaquetas": p.Plaquetas, "albumina": p.Albumina,
		"globulina": p.Globulina, "procalcitonina": p.Procalcitonina,
		"leucocitos": p.Leucocitos, "pcr": p.PCR,
	}
	for field, v := range labs {
		if v != nil && *v < 0 {
			return NewValidationError(field, "el valor no puede ser negativo", *v)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Probabilities is the per-class breakdown in percent.
type Probabilities struct {
	Leve     float64 `json:"leve"`
	Moderada float64 `json:"moderada"`
	Severa   float64 `json:"severa"`
}

// Of returns the probability assigned to a severity.
func (p Probabilities) Of(s Severity) float64 {
	switch s {
	case SeverityModerada:
		return p.Moderada
	case SeveritySevera:
		return p.Severa
	default:
		return p.Leve
	}
}

// Sum returns the total of the three components.
func (p Probabilities) Sum() float64 {
	return p.Leve + p.Moderada + p.Severa
}

// Argmax returns the most probable class. Ties resolve toward the earlier
// class in declared order (Leve, Moderada, Severa).
func (p Probabilities) Argmax() Severity {
	best := SeverityLeve
	for _, s := range Severities()[1:] {
		if p.Of(s) > p.Of(best) {
			best = s
		}
	}
	return best
}

// PredictionResult is the model output for one PatientData.
type PredictionResult struct {
	Prediccion     string        `json:"prediccion"`
	Codigo         int           `json:"codigo"`
	Confianza      float64       `json:"confianza"`
	Probabilidades Probabilities `json:"probabilidades"`
	Factores       []string      `json:"factores"`
	Disclaimer     string        `json:"disclaimer"`
}

// Severity returns the typed severity, preferring the numeric code.
func (r *PredictionResult) Severity() (Severity, error) {
	if s, err := SeverityFromCode(r.Codigo); err == nil {
		return s, nil
	}
	return ParseSeverity(r.Prediccion)
}

// EvaluationRecord is one persisted evaluation. Records are immutable once
// created; the clinical observation is joined in from its own store.
type EvaluationRecord struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	DatosPaciente    PatientData   `json:"datos_paciente"`
	Prediccion       string        `json:"prediccion"`
	PrediccionCodigo Severity      `json:"prediccion_codigo"`
	Probabilidades   Probabilities `json:"probabilidades"`
	Factores         []string      `json:"factores"`
	Confianza        float64       `json:"confianza"`
	CreatedAt        time.Time     `json:"created_at"`
	Observacion      string        `json:"observacion,omitempty"`
}

// ListOptions controls a store listing.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}

// DefaultListLimit mirrors the page size the history page asks for.
const DefaultListLimit = 50

// Normalize applies defaults to out-of-range values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// EvaluationPage is one listing result.
type EvaluationPage struct {
	Records    []EvaluationRecord `json:"records"`
	TotalCount int                `json:"total_count"`
}
