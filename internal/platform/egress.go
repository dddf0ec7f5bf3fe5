package platform

import (
	"context"

	"go.uber.org/zap"
)

// Platform is what the poller needs from the social network.
type Platform interface {
	Mentions(ctx context.Context, sinceID int64) ([]Mention, error)
	Reply(ctx context.Context, r Reply) error
}

// NewDryRun reads mentions from p but only logs replies.
func NewDryRun(p Platform, logger *zap.Logger) Platform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dryRun{Platform: p, logger: logger}
}

type dryRun struct {
	Platform
	logger *zap.Logger
}

func (d *dryRun) Reply(_ context.Context, r Reply) error {
	d.logger.Info("reply_dryrun",
		zap.Int64("in_reply_to", r.InReplyTo),
		zap.String("text", Address(r.Author, r.Text)),
		zap.Bool("image", r.ImagePath != ""))
	return nil
}
