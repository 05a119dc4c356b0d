// Package deletion implements DeletionCoordinator (spec §4.G):
// admin-initiated removal of a blog and everything derived from it.
package deletion

import (
	"context"
	"fmt"

	"github.com/lumenfeed/ingest/internal/interfaces"
)

// Coordinator wraps ArtifactStore.DeleteBlog with the reporting contract.
type Coordinator struct {
	artifacts interfaces.ArtifactStore
}

// New creates a new Coordinator.
func New(artifacts interfaces.ArtifactStore) *Coordinator {
	return &Coordinator{artifacts: artifacts}
}

// Result reports what was actually removed. Partial success is reported,
// not rolled back; repeated invocations are safe — a blog already gone
// simply reports false/0/false again.
type Result struct {
	BlogDeleted      bool
	QuestionsDeleted int
	SummaryDeleted   bool
}

// Delete removes blogID and everything derived from its URL.
func (c *Coordinator) Delete(ctx context.Context, blogID string) (*Result, error) {
	blogDeleted, questionsDeleted, summaryDeleted, err := c.artifacts.DeleteBlog(ctx, blogID)
	if err != nil {
		return nil, fmt.Errorf("delete blog %s: %w", blogID, err)
	}
	return &Result{BlogDeleted: blogDeleted, QuestionsDeleted: questionsDeleted, SummaryDeleted: summaryDeleted}, nil
}
