package prompt

import "fmt"

// MessageKey names a canned reply the orchestrator sends without consulting
// a model: payment gates, the busy signal, support handoffs. Model-written
// text follows the case language on its own; these are the only strings we
// translate by hand.
type MessageKey string

const (
	MsgPaymentRequest  MessageKey = "payment_request"
	MsgPaymentReminder MessageKey = "payment_reminder"
	MsgBusy            MessageKey = "busy"
	MsgSupportPause    MessageKey = "support_pause"
	MsgApology         MessageKey = "apology"
	MsgTicketOpened    MessageKey = "ticket_opened"
	MsgDraftReady      MessageKey = "draft_ready"
	MsgNeedDetails     MessageKey = "need_details"
)

// Canned renders the message for the given language, falling back to
// Romanian when the language has no translation. Arguments are positional
// per key: payment_request takes the tier, ticket_opened the ticket id,
// draft_ready the draft name, revision and download link.
func Canned(lang string, key MessageKey, args ...any) string {
	byLang, ok := canned[key]
	if !ok {
		return ""
	}
	format, ok := byLang[lang]
	if !ok {
		format = byLang["ro"]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

var canned = map[MessageKey]map[string]string{
	MsgPaymentRequest: {
		"ro": "Am analizat solicitarea dumneavoastră: se încadrează la nivelul %[1]d de complexitate. Pentru a continua, este necesară achitarea abonamentului corespunzător. Veți primi un link de plată; imediat ce plata este confirmată, reluăm lucrul la dosar.",
		"en": "We have reviewed your request: it falls under complexity tier %[1]d. To continue, the corresponding subscription needs to be paid. You will receive a payment link; as soon as the payment is confirmed, we resume work on your case.",
		"hu": "Áttekintettük a kérését: a(z) %[1]d. bonyolultsági szintbe tartozik. A folytatáshoz a megfelelő előfizetés befizetése szükséges. Fizetési linket fog kapni; amint a befizetés megerősítést nyer, folytatjuk az ügy feldolgozását.",
		"de": "Wir haben Ihr Anliegen geprüft: Es fällt in Komplexitätsstufe %[1]d. Um fortzufahren, muss das entsprechende Abonnement bezahlt werden. Sie erhalten einen Zahlungslink; sobald die Zahlung bestätigt ist, setzen wir die Arbeit an Ihrem Fall fort.",
		"fr": "Nous avons examiné votre demande : elle relève du niveau de complexité %[1]d. Pour continuer, l'abonnement correspondant doit être réglé. Vous recevrez un lien de paiement ; dès que le paiement sera confirmé, nous reprendrons le traitement de votre dossier.",
	},
	MsgPaymentReminder: {
		"ro": "Dosarul dumneavoastră este în așteptarea confirmării plății. De îndată ce plata este înregistrată, reluăm automat lucrul. Dacă ați plătit deja, confirmarea poate dura câteva minute.",
		"en": "Your case is awaiting payment confirmation. As soon as the payment is recorded, we automatically resume work. If you have already paid, confirmation can take a few minutes.",
		"hu": "Az ügye a fizetés megerősítésére vár. Amint a befizetés beérkezik, automatikusan folytatjuk a munkát. Ha már fizetett, a megerősítés néhány percet vehet igénybe.",
		"de": "Ihr Fall wartet auf die Zahlungsbestätigung. Sobald die Zahlung verbucht ist, setzen wir die Arbeit automatisch fort. Falls Sie bereits bezahlt haben, kann die Bestätigung einige Minuten dauern.",
		"fr": "Votre dossier est en attente de la confirmation du paiement. Dès que le paiement sera enregistré, nous reprendrons automatiquement le travail. Si vous avez déjà payé, la confirmation peut prendre quelques minutes.",
	},
	MsgBusy: {
		"ro": "Lucrăm în acest moment la dosarul dumneavoastră. Vă rugăm să reveniți cu mesajul în câteva minute.",
		"en": "We are currently working on your case. Please send your message again in a few minutes.",
		"hu": "Jelenleg az ügyén dolgozunk. Kérjük, küldje el üzenetét újra néhány perc múlva.",
		"de": "Wir arbeiten gerade an Ihrem Fall. Bitte senden Sie Ihre Nachricht in einigen Minuten erneut.",
		"fr": "Nous travaillons actuellement sur votre dossier. Veuillez renvoyer votre message dans quelques minutes.",
	},
	MsgSupportPause: {
		"ro": "Dosarul dumneavoastră a fost preluat de un coleg din echipa de suport, care vă va contacta în scurt timp. Până atunci, procesarea automată este suspendată.",
		"en": "Your case has been taken over by a colleague from our support team, who will contact you shortly. Until then, automatic processing is paused.",
		"hu": "Ügyét átvette az ügyfélszolgálati csapatunk egyik munkatársa, aki hamarosan felveszi Önnel a kapcsolatot. Addig az automatikus feldolgozás szünetel.",
		"de": "Ihr Fall wurde von einem Kollegen aus unserem Support-Team übernommen, der Sie in Kürze kontaktieren wird. Bis dahin ist die automatische Bearbeitung pausiert.",
		"fr": "Votre dossier a été repris par un collègue de notre équipe d'assistance, qui vous contactera sous peu. D'ici là, le traitement automatique est suspendu.",
	},
	MsgApology: {
		"ro": "Ne cerem scuze, a intervenit o problemă tehnică la procesarea solicitării dumneavoastră. Vă rugăm să încercați din nou; dacă problema persistă, un coleg va prelua dosarul.",
		"en": "We apologize, a technical problem occurred while processing your request. Please try again; if the problem persists, a colleague will take over your case.",
		"hu": "Elnézését kérjük, technikai hiba történt a kérés feldolgozása során. Kérjük, próbálja újra; ha a hiba továbbra is fennáll, egy munkatársunk átveszi az ügyét.",
		"de": "Wir entschuldigen uns, bei der Bearbeitung Ihrer Anfrage ist ein technisches Problem aufgetreten. Bitte versuchen Sie es erneut; falls das Problem bestehen bleibt, übernimmt ein Kollege Ihren Fall.",
		"fr": "Nous vous prions de nous excuser, un problème technique est survenu lors du traitement de votre demande. Veuillez réessayer ; si le problème persiste, un collègue reprendra votre dossier.",
	},
	MsgTicketOpened: {
		"ro": "Am întâmpinat o problemă pe care nu o putem rezolva automat, așa că am deschis tichetul %[1]s către echipa de suport. Un coleg va prelua dosarul dumneavoastră cât de curând.",
		"en": "We ran into a problem we cannot resolve automatically, so we opened ticket %[1]s with our support team. A colleague will take over your case as soon as possible.",
		"hu": "Olyan problémába ütköztünk, amelyet nem tudunk automatikusan megoldani, ezért megnyitottuk a(z) %[1]s jegyet az ügyfélszolgálatunknál. Egy munkatársunk hamarosan átveszi az ügyét.",
		"de": "Wir sind auf ein Problem gestoßen, das wir nicht automatisch lösen können, und haben daher das Ticket %[1]s bei unserem Support-Team eröffnet. Ein Kollege wird Ihren Fall so bald wie möglich übernehmen.",
		"fr": "Nous avons rencontré un problème que nous ne pouvons pas résoudre automatiquement ; nous avons donc ouvert le ticket %[1]s auprès de notre équipe d'assistance. Un collègue reprendra votre dossier dès que possible.",
	},
	MsgNeedDetails: {
		"ro": "Pentru a putea continua lucrul la dosar, avem nevoie de câteva detalii suplimentare. Vă rugăm să ne descrieți cât mai exact situația dumneavoastră și ce doriți să obținem.",
		"en": "To continue working on your case, we need a few more details. Please describe your situation as precisely as possible and what outcome you are looking for.",
		"hu": "Az ügy folytatásához néhány további részletre van szükségünk. Kérjük, írja le minél pontosabban a helyzetét és azt, hogy mit szeretne elérni.",
		"de": "Um an Ihrem Fall weiterarbeiten zu können, benötigen wir einige zusätzliche Angaben. Bitte beschreiben Sie Ihre Situation so genau wie möglich und was Sie erreichen möchten.",
		"fr": "Pour poursuivre le traitement de votre dossier, nous avons besoin de quelques précisions. Veuillez décrire votre situation aussi précisément que possible et ce que vous souhaitez obtenir.",
	},
	MsgDraftReady: {
		"ro": "Documentul „%[1]s” (versiunea %[2]d) este gata. Îl puteți descărca de aici: %[3]s",
		"en": "The document \"%[1]s\" (revision %[2]d) is ready. You can download it here: %[3]s",
		"hu": "A(z) „%[1]s” dokumentum (%[2]d. változat) elkészült. Itt töltheti le: %[3]s",
		"de": "Das Dokument „%[1]s“ (Fassung %[2]d) ist fertig. Sie können es hier herunterladen: %[3]s",
		"fr": "Le document « %[1]s » (version %[2]d) est prêt. Vous pouvez le télécharger ici : %[3]s",
	},
}
