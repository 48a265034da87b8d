package capture

// PathMetadata is derived purely from the position of a file inside the
// watched tree. It is the guaranteed fallback when OCR extraction fails.
type PathMetadata struct {
	CaptureDate string // YYYY-MM-DD
	SiteID      string
	PhotoName   string
}

// HeaderFields holds whatever the header OCR pass managed to read from the
// top band of the photo. Every field is independently optional.
type HeaderFields struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	Location      string `json:"location"`
	SpeedLimit    string `json:"speedLimit"`
	MeasuredSpeed string `json:"measuredSpeed"`
}

type PlateClass string

const (
	PlateParticular PlateClass = "particular"
	PlateMoto       PlateClass = "moto"
	PlateComercial  PlateClass = "comercial"
	PlateUnknown    PlateClass = "unknown"
)

// PlateResult is the outcome of the plate vision pass. An empty Plate with
// Valid=false is the terminal value after retries are exhausted, never an
// error.
type PlateResult struct {
	Plate string     `json:"plate"`
	Class PlateClass `json:"-"`
	Valid bool       `json:"-"`
}

// ProcessingInfo records per-source success and the ordered error list for
// one fused extraction run.
type ProcessingInfo struct {
	HeaderSuccess bool     `json:"headerOCRSuccess"`
	PlateSuccess  bool     `json:"plateOCRSuccess"`
	Errors        []string `json:"errors,omitempty"`
}

// FusedRecord combines the two extraction sources for one photo. It lives
// only for the duration of that photo's pipeline run; the JSON form is what
// ends up in the persisted photo_info payload (internal-only fields carry
// the "-" tag).
type FusedRecord struct {
	HeaderFields
	Vehicle    PlateResult    `json:"vehicle"`
	FileName   string         `json:"fileName,omitempty"`
	Processing ProcessingInfo `json:"processingInfo"`
}

// IsValid reports whether the fused record carries the critical trio: date,
// time and plate text.
func (r FusedRecord) IsValid() bool {
	return r.Date != "" && r.Time != "" && r.Vehicle.Plate != ""
}

// MergedRecord is the last in-memory representation before persistence.
// Date and Cruise are always resolvable: path metadata backs them when the
// extracted values are absent or unparseable.
type MergedRecord struct {
	Date      string // YYYY-MM-DD
	Cruise    string
	PhotoName string
	Payload   FusedRecord
}
