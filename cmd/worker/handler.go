package main

import (
	"context"

	appcoding "github.com/turtacn/ClinTerm-Intelligence/internal/application/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
)

// noteProcessor is the part of the coding service the worker drives.
type noteProcessor interface {
	ProcessNote(ctx context.Context, input *appcoding.NoteInput) (*appcoding.NoteResult, error)
}

// newNoteHandler codes every submitted note. Results reach the resolutions
// topic and the database through the service's sinks.
func newNoteHandler(svc noteProcessor, logger logging.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		note, err := kafka.DecodeNote(msg)
		if err != nil {
			logger.Warn("undecodable note message",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err))
			return err
		}

		result, err := svc.ProcessNote(ctx, &appcoding.NoteInput{NoteID: note.NoteID, Lines: note.Lines})
		if err != nil {
			return err
		}
		logger.Debug("note coded",
			logging.String("note_id", result.NoteID),
			logging.String("run_id", result.RunID.String()),
			logging.Int("records", len(result.Records)))
		return nil
	}
}
