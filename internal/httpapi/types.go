package httpapi

import (
	"time"

	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/render"
	"github.com/nhle/dragonmail/internal/session"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StateResponse mirrors session.State.
type StateResponse struct {
	Phase            string          `json:"phase"`
	Account          *model.Account  `json:"account"`
	Messages         []model.Message `json:"messages"`
	Settings         model.Settings  `json:"settings"`
	IsLoading        bool            `json:"isLoading"`
	IsViewing        bool            `json:"isViewing"`
	SelectedMessage  *model.Message  `json:"selectedMessage,omitempty"`
	TimeRemainingSec int64           `json:"timeRemainingSec"`
	Limits           model.APILimits `json:"limits"`
	LastSync         *time.Time      `json:"lastSync,omitempty"`
	Error            string          `json:"error,omitempty"`
}

func newStateResponse(st session.State) StateResponse {
	resp := StateResponse{
		Phase:            st.Phase.String(),
		Account:          st.Account,
		Messages:         st.Messages,
		Settings:         st.Settings,
		IsLoading:        st.IsLoading,
		IsViewing:        st.IsViewing,
		SelectedMessage:  st.SelectedMessage,
		TimeRemainingSec: int64(st.TimeRemaining / time.Second),
		Limits:           st.Limits,
	}
	if !st.Sync.LastSync.IsZero() {
		last := st.Sync.LastSync
		resp.LastSync = &last
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}
	return resp
}

// MessageResponse is a detailed message with rendered bodies.
type MessageResponse struct {
	model.Message
	Body          string `json:"body"`
	SanitizedHTML string `json:"sanitizedHtml,omitempty"`
}

func newMessageResponse(msg model.Message) MessageResponse {
	resp := MessageResponse{
		Message: msg,
		Body:    render.Body(msg),
	}
	if html := msg.HTMLBody(); html != "" {
		resp.SanitizedHTML = render.SanitizeHTML(html)
	}
	return resp
}

// SiteRequest is the body of PUT /account/site.
type SiteRequest struct {
	Site string `json:"site"`
}
