package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/models"
)

const (
	TemplateCompanyName = "System Template Company"
	TemplateUserEmail   = "system@template.local"
	TemplateTitle       = "Template Assessment Questions"
)

var defaultQuestionSet = []struct {
	group string
	text  string
}{
	{"Odgovornost", "Zadatke obavlja tačno i blagovremeno"},
	{"Odgovornost", "Prihvata odgovornost za lični uspeh"},
	{"Odgovornost", "Preuzima odgovornost za neuspjehe"},
	{"Odgovornost", "Pokazuje dosljednost u riječima i na djelu"},
	{"Odgovornost", "Postavlja visoka očekivanja za sebe"},
	{"Fokus na klijenta", "Traži načine za dodavanje vrijednosti izvan očekvanja klijenata"},
	{"Fokus na klijenta", "Istražuje i bavi se neutvrdjenim, temeljnim i dugoročnim potrebama klijenata"},
	{"Fokus na klijenta", "Poboljšava sistem i proces pružanja usluga klijentima"},
	{"Fokus na klijenta", "Predviđa buduće potrebe i brige klijenata"},
	{"Komunikacija", "Prilagođava komunikaciju publici"},
	{"Komunikacija", "Pruža efikasne, visokokvalitetne prezentacije"},
	{"Komunikacija", "Efikasno koristi metode neverbalne komunikacije"},
	{"Komunikacija", "Dijeli odgovarajuću količinu informacija"},
	{"Komunikacija", "Profesionalno podnosi kritike"},
	{"Usluge klijentima", "Aktivno sluša klijente"},
	{"Usluge klijentima", "Odgovara na zahtjeve klijenata"},
	{"Usluge klijentima", "Profesionalno i ljubazno rješava pritužbe klijenata"},
	{"Usluge klijentima", "Pokazuje empatiju i razumijevanje prema klijentima"},
	{"Usluge klijentima", "Komunicira zahtjeve klijenata menadžmentu na odgovarajući način"},
	{"Strateško razmišljanje", "Predviđa dugoročne implikacije predloženih rješenja"},
	{"Strateško razmišljanje", "Prosudjuje razumno u novim situacijama"},
	{"Strateško razmišljanje", "Identificira i razmatra nove mogućnosti i rizike"},
	{"Strateško razmišljanje", "Pruža nove informacije ili podatke za ključnu odluku"},
	{"Strateško razmišljanje", "Pokazuje pronicljivo razumijevanje organizacijskog konteksta i prioreta"},
	{"Timski rad", "Odaje priznanje i priznaje doprinose i napore drugih članova tima"},
	{"Timski rad", "Ulaže izuzetne napore da pomogne članovima tima"},
	{"Timski rad", "Njeguje timski duh"},
	{"Timski rad", "Osigurava da svi članovi grupe imaju priliku da doprinesu grupnim diskusijama"},
	{"Timski rad", "Pomaže u izgradnji konsenzusa među članovima tima"},
	{"Rješavanje problema", "Pristupa složenim problemima tako što ih dijeli na komponente kojima se može upravljati"},
	{"Rješavanje problema", "Identifikuje optimalna rješenja važući prednosti i mane alternativnih pristupa"},
	{"Rješavanje problema", "Identificira i traži informacije potrebne za rješavanje problema"},
	{"Rješavanje problema", "Predviđa moguće negativne ishode odluka"},
	{"Rješavanje problema", "Nakon implementacije, ocjenjuje učinkovitost i efikasnost rešenja"},
	{"Upravaljanje vremenom", "Prikladno određuje prioritete zadataka prema važnosti i vremenskom ograničenju"},
	{"Upravaljanje vremenom", "Precizno predviđa vrijeme potrebno za završetak zadatka"},
	{"Upravaljanje vremenom", "Koristi sisteme za upravljanje projektima i kalendare za organizaciju vremena"},
	{"Upravaljanje vremenom", "Uvijek je svjestan statusa svih dodijeljenih zadataka"},
	{"Upravaljanje vremenom", "Redovno obavještava druge o statusu zadatka"},
}

// DefaultQuestions returns a fresh copy of the 39 rating questions seeded
// into the template, positioned 1..39.
func DefaultQuestions() []*models.Question {
	out := make([]*models.Question, 0, len(defaultQuestionSet))
	for i, q := range defaultQuestionSet {
		out = append(out, &models.Question{
			Text:     q.text,
			Group:    q.group,
			Type:     models.QuestionRating,
			Position: i + 1,
		})
	}
	return out
}

// DefaultSystemRecords describes the protected template records.
func DefaultSystemRecords(now time.Time) *models.SystemRecords {
	return &models.SystemRecords{
		Company: &models.Company{
			Name:        TemplateCompanyName,
			Description: "System company for template questions",
			CreatedAt:   now,
		},
		User: &models.User{
			Email:     TemplateUserEmail,
			Name:      "System Template",
			Role:      models.RoleAdmin,
			CreatedAt: now,
		},
		Template: &models.Assessment{
			Title:       TemplateTitle,
			Description: "Template containing predefined assessment questions - DO NOT DELETE",
			CreatedAt:   now,
		},
	}
}

type BootstrapStore interface {
	EnsureSystemRecords(ctx context.Context, want *models.SystemRecords, questions []*models.Question) (*models.SystemRecords, error)
}

// Bootstrap makes sure the template company, user and question set exist.
func Bootstrap(ctx context.Context, store BootstrapStore, logger *zap.Logger) (*models.SystemRecords, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rec, err := store.EnsureSystemRecords(ctx, DefaultSystemRecords(time.Now().UTC()), DefaultQuestions())
	if err != nil {
		return nil, err
	}
	logger.Info("system records ready",
		zap.Int64("company_id", rec.Company.ID),
		zap.Int64("user_id", rec.User.ID),
		zap.Int64("template_id", rec.Template.ID))
	return rec, nil
}
