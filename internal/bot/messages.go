package bot

import (
	"errors"
	"fmt"
	"strings"

	"flotta/internal/core"
)

const (
	helpText = "🛠️ Bot Flotta Veicoli\n" +
		"Comandi disponibili:\n" +
		"/nuovo - Inserisci nuovi dati\n" +
		"/report [mese anno] - Genera report mensile\n" +
		"/annulla - Annulla l'operazione in corso"

	msgAccessDenied     = "⛔ Accesso negato"
	msgStoreUnavailable = "❌ Archivio non raggiungibile, riprova più tardi"
	msgNoData           = "ℹ️ Nessun dato trovato"
	msgNoSession        = "ℹ️ Nessuna operazione in corso. Usa /nuovo per registrare un utilizzo."
	msgSessionExpired   = "⌛ Sessione scaduta per inattività. Usa /nuovo per ricominciare."
	msgNoPlates         = "ℹ️ Nessuna targa presente in archivio."
	msgInvalidPeriod    = "❌ Periodo non valido. Esempi: /report 3 2024, /report marzo 2024"
	msgInvalidInput     = "⚠️ Valore non valido, riprova."
	msgUnknownCommand   = "❓ Comando sconosciuto. Usa /help per l'elenco dei comandi."
	msgNothingToCancel  = "ℹ️ Nessuna operazione da annullare."
	msgCancelled        = "❌ Operazione annullata."
	msgReportCancelled  = "❌ Report annullato. La registrazione in corso resta aperta."
	msgUseButtons       = "⚠️ Usa i pulsanti per scegliere."
	msgSystemError      = "❌ Errore di sistema"

	msgSelectYear  = "📅 Seleziona l'anno:"
	msgSelectMonth = "📅 Anno %d, seleziona il mese:"
)

// userMessage maps an error kind to the text shown in chat. month and year
// are used only for ErrNoDataForPeriod.
func userMessage(err error, month, year int) string {
	var missing *core.MissingColumnsError
	switch {
	case errors.Is(err, core.ErrAccessDenied):
		return msgAccessDenied
	case errors.As(err, &missing):
		return "❌ Intestazioni mancanti: " + strings.Join(missing.Missing, ", ")
	case errors.Is(err, core.ErrStoreUnavailable):
		return msgStoreUnavailable
	case errors.Is(err, core.ErrNoDataForPeriod):
		return fmt.Sprintf("ℹ️ Nessun dato per %02d/%d", month, year)
	case errors.Is(err, core.ErrNoData):
		return msgNoData
	case errors.Is(err, core.ErrSessionExpired):
		return msgSessionExpired
	case errors.Is(err, core.ErrNoSession):
		return msgNoSession
	case errors.Is(err, core.ErrNoPlates):
		return msgNoPlates
	case errors.Is(err, core.ErrInvalidPeriod):
		return msgInvalidPeriod
	case errors.Is(err, core.ErrValidation):
		return msgInvalidInput
	default:
		return msgSystemError
	}
}

func confirmation(rec core.VehicleUsageRecord) string {
	var b strings.Builder
	b.WriteString("✅ Utilizzo registrato\n")
	fmt.Fprintf(&b, "📅 %s\n🚗 %s\n👤 %s", rec.Date.Format("02/01/2006"), rec.Plate, rec.Driver)
	if rec.Odometer != nil {
		fmt.Fprintf(&b, "\n📏 %s km", core.FormatOdometer(*rec.Odometer))
	}
	if rec.Notes != nil && *rec.Notes != "" {
		fmt.Fprintf(&b, "\n📝 %s", *rec.Notes)
	}
	return b.String()
}

func reportFooter(rep core.Report) string {
	if rep.Dropped == 0 {
		return rep.Text
	}
	return fmt.Sprintf("%s\n\n⚠️ %d righe ignorate perché incomplete", rep.Text, rep.Dropped)
}
