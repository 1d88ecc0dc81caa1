package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
	"github.com/roach88/carta/internal/testutil"
)

func newContainer(t *testing.T) (*state.Container, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(testutil.Epoch)
	c := state.New(
		state.WithNow(clock.Now),
		state.WithIDGenerator(testutil.NewSequenceGenerator("id")),
	)
	return c, clock
}

func TestExport_Golden(t *testing.T) {
	c, clock := newContainer(t)
	clock.Advance(time.Minute)
	c.Dispatch(state.AddNovel{Title: "Dark Secrets", Genre: "Drama", Chapters: 40, Year: 2020, Active: true})
	at := clock.Advance(time.Minute)

	var buf bytes.Buffer
	_, err := Export(c, &buf, at)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", buf.Bytes())
}

func TestExport_RecordsLastBackup(t *testing.T) {
	c, clock := newContainer(t)
	at := clock.Advance(time.Hour)

	var buf bytes.Buffer
	doc, err := Export(c, &buf, at)
	require.NoError(t, err)
	assert.Nil(t, doc.Metadata.LastBackup, "document reflects the state before this export")

	s := c.Snapshot()
	require.NotNil(t, s.Admin.LastBackup)
	assert.Equal(t, at, *s.Admin.LastBackup)

	head, ok := s.Admin.Notifications.Latest()
	require.True(t, ok)
	assert.Equal(t, state.SectionBackup, head.Section)
	assert.Equal(t, model.SeveritySuccess, head.Severity)
	assert.Equal(t, "2 zones, 0 novels, transfer fee 10%", head.Details)

	var decoded Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, AppName, decoded.AppName)
	assert.Len(t, decoded.AdminConfig.DeliveryZones, 2)
}

func TestBuild_Metadata(t *testing.T) {
	c, _ := newContainer(t)
	c.Dispatch(state.AddNovel{Title: "A", Chapters: 10, Active: true})
	c.Dispatch(state.AddNovel{Title: "B", Chapters: 10})
	zones := c.Zones()
	inactive := zones[0]
	inactive.Active = false
	c.Dispatch(state.UpdateZone{Zone: inactive})

	d := Build(c.Snapshot(), testutil.Epoch)
	assert.Equal(t, 2, d.Metadata.TotalZones)
	assert.Equal(t, 1, d.Metadata.ActiveZones)
	assert.Equal(t, 2, d.Metadata.TotalNovels)
	assert.Equal(t, 1, d.Metadata.ActiveNovels)
	assert.Equal(t, float64(10), d.Metadata.TransferFeePercent)
	assert.NotNil(t, d.AdminConfig.LastUpdates.Novels)
	assert.NotNil(t, d.AdminConfig.LastUpdates.Zones)
	assert.Nil(t, d.AdminConfig.LastUpdates.Prices)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteFailureLeavesStateUntouched(t *testing.T) {
	c, clock := newContainer(t)
	before := c.Snapshot()

	_, err := Export(c, failingWriter{}, clock.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, before.Revision, c.Snapshot().Revision)
	assert.Nil(t, c.Snapshot().Admin.LastBackup)
}
