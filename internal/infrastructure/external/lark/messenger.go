package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
)

const (
	receiveIDTypeOpenID = "open_id"
	msgTypeInteractive  = "interactive"
)

// ApprovalNotifier implements port.ApprovalNotifier with an interactive card
// sent to a single approver
type ApprovalNotifier struct {
	sender         MessageSender
	approverOpenID string
	logger         *zap.Logger
}

// NewApprovalNotifier creates a new approval notifier
func NewApprovalNotifier(sender MessageSender, approverOpenID string, logger *zap.Logger) *ApprovalNotifier {
	return &ApprovalNotifier{
		sender:         sender,
		approverOpenID: approverOpenID,
		logger:         logger,
	}
}

// NotifyApprovalRequired sends the approval card for a held payment
func (n *ApprovalNotifier) NotifyApprovalRequired(ctx context.Context, notice port.ApprovalNotice) error {
	if n.approverOpenID == "" {
		return fmt.Errorf("approver open_id is not configured")
	}

	content, err := buildApprovalCard(notice)
	if err != nil {
		return err
	}

	messageID, err := n.sender.SendMessage(ctx, receiveIDTypeOpenID, n.approverOpenID, msgTypeInteractive, content)
	if err != nil {
		return fmt.Errorf("failed to notify approver: %w", err)
	}

	n.logger.Info("Approver notified",
		zap.String("thread_id", notice.ThreadID),
		zap.String("invoice_id", notice.Interrupt.InvoiceID),
		zap.Bool("reminder", notice.Reminder),
		zap.String("message_id", messageID))
	return nil
}

type card struct {
	Config   cardConfig    `json:"config"`
	Header   cardHeader    `json:"header"`
	Elements []cardElement `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardHeader struct {
	Template string   `json:"template"`
	Title    cardText `json:"title"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag  string    `json:"tag"`
	Text *cardText `json:"text,omitempty"`
}

func buildApprovalCard(notice port.ApprovalNotice) (string, error) {
	title := "Payment approval required"
	template := "orange"
	if notice.Reminder {
		title = "Reminder: payment still awaiting approval"
		template = "red"
	}

	in := notice.Interrupt
	body := fmt.Sprintf("%s\n\n**Invoice:** %s\n**Vendor:** %s\n**Amount:** %s\n**Approval threshold:** %s\n**Thread:** %s",
		in.Question, in.InvoiceID, in.VendorID, in.Amount, in.Threshold, notice.ThreadID)

	c := card{
		Config: cardConfig{WideScreenMode: true},
		Header: cardHeader{
			Template: template,
			Title:    cardText{Tag: "plain_text", Content: title},
		},
		Elements: []cardElement{
			{Tag: "div", Text: &cardText{Tag: "lark_md", Content: body}},
			{Tag: "hr"},
			{Tag: "div", Text: &cardText{Tag: "lark_md", Content: "Resume the run with thread_id **" + notice.ThreadID + "** to approve or reject."}},
		},
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal card content: %w", err)
	}
	return string(data), nil
}

var _ port.ApprovalNotifier = (*ApprovalNotifier)(nil)
