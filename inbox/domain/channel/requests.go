package channel

type CreateChannelRequest struct {
	CrmChannelID string `json:"crm_channel_id"`
	Name         string `json:"name"`
	Active       *bool  `json:"active,omitempty"`
}

type AddWaConfigRequest struct {
	ChannelID          string   `json:"-"`
	Name               string   `json:"name"`
	WaBusinessID       string   `json:"wa_business_id"`
	PhoneNumberID      string   `json:"phone_number_id"`
	DisplayPhoneNumber string   `json:"display_phone_number"`
	AccessToken        string   `json:"access_token"`
	Participants       []string `json:"participants"`
	Active             *bool    `json:"active,omitempty"`
}
