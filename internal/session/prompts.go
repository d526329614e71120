package session

import (
	"fmt"

	"flotta/internal/core"
)

var (
	cancelOption = Option{Label: "❌ Annulla", Value: ChoiceCancel}
	skipOption   = Option{Label: "⏭ Salta", Value: ChoiceSkip}
)

func vehiclePrompt(s *EntrySession) Prompt {
	opts := make([]Option, 0, len(s.Plates)+1)
	for _, p := range s.Plates {
		opts = append(opts, Option{Label: "🚗 " + p, Value: PlatePrefix + p})
	}
	opts = append(opts, cancelOption)
	return Prompt{Text: "🚗 Seleziona il veicolo:", Options: opts}
}

// The driver step takes free text only.
func driverPrompt(s *EntrySession) Prompt {
	return Prompt{Text: fmt.Sprintf("🚗 Veicolo: %s\n👤 Chi guida? Scrivi il nome del driver.", s.Plate)}
}

func odometerPrompt(s *EntrySession) Prompt {
	return Prompt{
		Text:    fmt.Sprintf("👤 Driver: %s\n📏 Inserisci i km attuali, oppure salta.", s.Driver),
		Options: []Option{skipOption, cancelOption},
	}
}

func notesPrompt(s *EntrySession) Prompt {
	km := "non indicati"
	if s.Odometer != nil {
		km = core.FormatOdometer(*s.Odometer)
	}
	return Prompt{
		Text:    fmt.Sprintf("📏 Km: %s\n📝 Segnalazioni? Scrivi una nota, oppure salta.", km),
		Options: []Option{skipOption, cancelOption},
	}
}

func promptFor(s *EntrySession) Prompt {
	switch s.State {
	case StateSelectVehicle:
		return vehiclePrompt(s)
	case StateCollectDriver:
		return driverPrompt(s)
	case StateCollectOdometer:
		return odometerPrompt(s)
	case StateCollectNotes:
		return notesPrompt(s)
	default:
		return Prompt{}
	}
}
