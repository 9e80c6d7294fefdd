package workflow

// Gate is the exit rule of a stage: the draft must satisfy Pass before the
// pointer may move forward. Heading and Message are what the user sees
// when it does not.
type Gate struct {
	Heading string
	Message string
	Pass    func(Draft) bool
}

// gates is the exit table. The terminal stage has no entry.
var gates = map[Stage]Gate{
	StageVehicle: {
		Heading: "Missing Information",
		Message: "Please complete all vehicle and date selections.",
		Pass: func(d Draft) bool {
			return d.VehicleID != "" && d.PickupDate != "" && d.ReturnDate != ""
		},
	},
	StageDocuments: {
		Heading: "Documents Required",
		Message: "Please upload both driver's license and ID document.",
		Pass:    func(d Draft) bool { return d.DriversLicense != "" && d.IDDocument != "" },
	},
	StagePayment: {
		Heading: "Payment Required",
		Message: "Please complete the payment to continue.",
		Pass:    func(d Draft) bool { return d.PaymentConfirmed },
	},
	StageConfirmation: {
		Heading: "Error",
		Message: "Booking not found. Please go back and try again.",
		Pass:    func(d Draft) bool { return d.BookingID != "" },
	},
	StagePhotos: {
		Heading: "Photos Required",
		Message: "Please upload all 10 vehicle inspection photos.",
		Pass:    func(d Draft) bool { return len(d.CheckinPhotos) >= RequiredPhotoCount },
	},
	StageInspection: {
		Heading: "Information Required",
		Message: "Please record fuel level and mileage.",
		Pass:    func(d Draft) bool { return d.CheckinFuelLevel != 0 && d.CheckinMileage != 0 },
	},
	StageSignature: {
		Heading: "Signature Required",
		Message: "Please sign the rental agreement.",
		Pass:    func(d Draft) bool { return d.CheckinSignature != "" },
	},
}

// CheckGate evaluates the exit rule of stage s against d. It performs no
// I/O and returns nil for stages without a rule.
func CheckGate(s Stage, d Draft) error {
	g, ok := gates[s]
	if !ok || g.Pass(d) {
		return nil
	}
	return &ValidationError{Stage: s, Heading: g.Heading, Message: g.Message}
}
