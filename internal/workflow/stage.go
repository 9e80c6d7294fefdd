package workflow

// Stage is the position of a draft in the eight step booking sequence.
// The zero value is not a valid stage; a fresh draft starts at StageVehicle.
type Stage int

const (
	StageVehicle      Stage = iota + 1 // vehicle & dates
	StageDocuments                     // driver's license and ID upload
	StagePayment                       // payment form
	StageConfirmation                  // booking confirmed
	StagePhotos                        // check-in inspection photos
	StageInspection                    // fuel level & mileage
	StageSignature                     // rental agreement signature
	StageStartRental                   // terminal
)

// FirstStage and FinalStage bound the sequence.
const (
	FirstStage = StageVehicle
	FinalStage = StageStartRental
)

// TotalStages is the number of steps shown to the user.
const TotalStages = int(FinalStage)

var stageNames = map[Stage]string{
	StageVehicle:      "Vehicle & Dates",
	StageDocuments:    "Documents",
	StagePayment:      "Payment",
	StageConfirmation: "Booking Confirmed",
	StagePhotos:       "Vehicle Photos",
	StageInspection:   "Fuel & Mileage",
	StageSignature:    "Sign Agreement",
	StageStartRental:  "Start Rental",
}

// String returns the display name of the stage.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Valid reports whether s lies within 1..8.
func (s Stage) Valid() bool { return s >= FirstStage && s <= FinalStage }

// Progress is the completion percentage shown in the progress bar.
func (s Stage) Progress() int {
	if !s.Valid() {
		return 0
	}
	return int(s) * 100 / TotalStages
}
