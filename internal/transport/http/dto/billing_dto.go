package dto

type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

type PortalSessionResponse struct {
	URL string `json:"url"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}
