package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
)

const emptyReplyFallback = "Sorry, no response generated."

type ChatUseCase struct {
	assistant ports.Assistant
	now       func() time.Time
}

func NewChatUseCase(assistant ports.Assistant) *ChatUseCase {
	return &ChatUseCase{assistant: assistant, now: time.Now}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("message is required"))
	}

	response, err := uc.assistant.Reply(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("forward chat message: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		response = emptyReplyFallback
	}

	now := uc.now().UTC()
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = newConversationID(now)
	}

	return &domain.ChatReply{
		Response:       response,
		ConversationID: conversationID,
		Timestamp:      now,
	}, nil
}

func newConversationID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "conv_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}
