package machine

import (
	"fmt"
	"strings"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/i18n"
)

// Catalog keys for the orchestrator's conversation replies. The rendered
// templates live under locales/.
const (
	msgWelcome           = "flow.welcome"
	msgAskConsent        = "flow.ask_consent"
	msgConsentDeclined   = "flow.consent_declined"
	msgAskService        = "flow.ask_service"
	msgConfirmService    = "flow.confirm_service"
	msgAskCity           = "flow.ask_city"
	msgConfirmCity       = "flow.confirm_city"
	msgSearching         = "flow.searching"
	msgStillSearching    = "flow.still_searching"
	msgNobodyAvailable   = "flow.nobody_available"
	msgOfferNewSearch    = "flow.offer_new_search"
	msgProviderListHead  = "flow.provider_list_header"
	msgProviderListFoot  = "flow.provider_list_footer"
	msgProviderDetail    = "flow.provider_detail"
	msgContactShared     = "flow.contact_shared"
	msgAskContactShare   = "flow.ask_contact_share"
	msgAskHiringFeedback = "flow.ask_hiring_feedback"
	msgThanksFeedback    = "flow.thanks_feedback"
	msgGoodbye           = "flow.goodbye"
	msgTryAgain          = "flow.try_again"
	msgRecovered         = "flow.recovered"
)

func renderConfirmService(tr i18n.Translator, service string) string {
	return fmt.Sprintf(tr.T(msgConfirmService), service)
}

func renderConfirmCity(tr i18n.Translator, city string) string {
	return fmt.Sprintf(tr.T(msgConfirmCity), city)
}

func renderProviderList(tr i18n.Translator, providers []flow.ProviderCandidate) string {
	if len(providers) == 0 {
		return tr.T(msgNobodyAvailable)
	}

	var b strings.Builder
	b.WriteString(tr.T(msgProviderListHead))
	b.WriteByte('\n')
	for i, p := range providers {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.Name)
	}
	b.WriteString(tr.T(msgProviderListFoot))

	return b.String()
}

func renderProviderDetail(tr i18n.Translator, p flow.ProviderCandidate) string {
	return fmt.Sprintf(tr.T(msgProviderDetail), p.Name)
}

func renderContactShared(tr i18n.Translator, p *flow.ProviderCandidate) string {
	if p == nil {
		return tr.T(msgTryAgain)
	}

	return fmt.Sprintf(tr.T(msgContactShared), p.Name, p.Phone)
}
