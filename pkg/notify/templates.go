package notify

import "fmt"

// DateLayout is the day/month/year layout used in email copy.
const DateLayout = "02/01/2006"

// CancellationScheduled is sent when the owner schedules non-renewal; access remains until endsAt.
func CancellationScheduled(to, endsAt string) Message {
	if endsAt == "" {
		endsAt = "date inconnue"
	}
	return Message{
		To:      to,
		Subject: "Votre abonnement a été annulé",
		Body: fmt.Sprintf("Bonjour %s,\n\nVotre abonnement a bien été annulé. "+
			"Vous aurez toujours accès à votre menu QR Code jusqu'au %s.\n\nMerci pour votre confiance !", to, endsAt),
	}
}

// SubscriptionEnded is sent when the provider deletes the subscription.
func SubscriptionEnded(to string) Message {
	return Message{
		To:      to,
		Subject: "Votre abonnement a été annulé",
		Body: fmt.Sprintf("Bonjour %s,\n\nVotre abonnement a pris fin aujourd'hui. "+
			"Vous n'avez plus accès à la modification de votre menu QR Code.\n\nMerci pour votre confiance !", to),
	}
}

// SubscriptionExpired is sent by the expiry sweep after a downgrade.
func SubscriptionExpired(to string) Message {
	return Message{
		To:      to,
		Subject: "Votre abonnement est terminé",
		Body: "Bonjour,\n\nVotre abonnement pro est arrivé à échéance et vous avez été " +
			"automatiquement basculé vers le plan gratuit.\n\nMerci de votre confiance.",
	}
}

// Welcome is sent after the first successful subscription payment.
func Welcome(to, endsAt string) Message {
	return Message{
		To:      to,
		Subject: "Bienvenue dans le plan Pro",
		Body: fmt.Sprintf("Bonjour %s,\n\nVotre abonnement Pro est actif. "+
			"Vous pouvez dès maintenant modifier votre menu QR Code. Prochaine échéance : %s.\n\nMerci pour votre confiance !", to, endsAt),
	}
}

// RenewalConfirmed is sent after a recurring payment succeeded.
func RenewalConfirmed(to, endsAt string) Message {
	return Message{
		To:      to,
		Subject: "Votre abonnement a été renouvelé",
		Body: fmt.Sprintf("Bonjour %s,\n\nVotre paiement a bien été reçu et votre abonnement est renouvelé "+
			"jusqu'au %s.\n\nMerci pour votre confiance !", to, endsAt),
	}
}
