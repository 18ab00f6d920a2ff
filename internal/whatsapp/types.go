package whatsapp

// WebhookPayload is the Cloud-API-shaped envelope 360dialog delivers to
// our webhook.
type WebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []InboundWebhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundWebhookMessage is one customer message inside a webhook payload.
type InboundWebhookMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Audio *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
	} `json:"audio,omitempty"`
}

// Inbound is the flattened form of a webhook message the handlers work
// with.
type Inbound struct {
	MessageID    string
	From         string
	CustomerName string
	Text         string
	AudioMediaID string
}

// Flatten extracts every message from the payload, pairing each with the
// sender's profile name when the provider included one.
func (p *WebhookPayload) Flatten() []Inbound {
	var out []Inbound
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				in := Inbound{
					MessageID:    m.ID,
					From:         m.From,
					CustomerName: names[m.From],
				}
				if m.Text != nil {
					in.Text = m.Text.Body
				}
				if m.Audio != nil {
					in.AudioMediaID = m.Audio.ID
				}
				out = append(out, in)
			}
		}
	}
	return out
}

type outboundText struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type outboundAudio struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Audio            struct {
		Link string `json:"link"`
	} `json:"audio"`
}

type mediaURLResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}
