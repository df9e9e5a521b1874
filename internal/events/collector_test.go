package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

type fakeObject struct{}

func (fakeObject) Kind() model.ObjectKind { return model.KindRoa }

func TestResultCollectorRecordsSuccessAndFailure(t *testing.T) {
	c := NewResultCollector()

	ok := model.NewValidationResult()
	ok.Push("rsync://example/a.roa")
	c.AfterFetchSuccess("rsync://example/a.roa", fakeObject{}, ok)

	failed := model.NewValidationResult()
	failed.Push("rsync://example/b.roa")
	failed.AddCheck(model.NewCheck(model.CheckObjectExpired, model.Failed, "expired"))
	c.AfterFetchFailure("rsync://example/b.roa", failed)

	objects := c.Objects()
	require.Len(t, objects, 2)
	require.True(t, objects["rsync://example/a.roa"].Valid)
	require.False(t, objects["rsync://example/b.roa"].Valid)
}

func TestResultCollectorObjectsReturnsIndependentSnapshot(t *testing.T) {
	c := NewResultCollector()
	result := model.NewValidationResult()
	c.AfterFetchSuccess("rsync://example/a.roa", fakeObject{}, result)

	snap := c.Objects()
	delete(snap, "rsync://example/a.roa")

	require.Len(t, c.Objects(), 1, "mutating a returned snapshot must not affect the collector's state")
}
