package inbox_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/expense-sync/internal/inbox"
)

const backupXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="3">
  <sms protocol="0" address="VM-HDFCBK" date="1717228800000" type="1" body="Your account XXXX1234 was debited for INR 1,250.00 at AMAZON." read="1" />
  <sms protocol="0" address="+15550100" date="1717228900000" type="2" body="sent by me" read="1" />
  <sms protocol="0" address="AX-ICICIB" date="bogus" body="INR 300 credited to a/c" />
</smses>`

func TestReadBackup(t *testing.T) {
	msgs, err := inbox.ReadBackup(strings.NewReader(backupXML))
	require.NoError(t, err)
	require.Len(t, msgs, 2, "sent messages are skipped")

	assert.Equal(t, "VM-HDFCBK", msgs[0].Sender)
	assert.Equal(t, inbox.SourceBackup, msgs[0].Source)
	assert.Contains(t, msgs[0].Body, "debited for INR 1,250.00")
	assert.True(t, msgs[0].ReceivedAt.Equal(time.UnixMilli(1717228800000)))
	assert.NotEmpty(t, msgs[0].ID)

	assert.True(t, msgs[1].ReceivedAt.IsZero(), "an unparsable date is left for the queue to stamp")
}

func TestReadBackup_StableIDs(t *testing.T) {
	first, err := inbox.ReadBackup(strings.NewReader(backupXML))
	require.NoError(t, err)
	second, err := inbox.ReadBackup(strings.NewReader(backupXML))
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestReadBackup_Malformed(t *testing.T) {
	_, err := inbox.ReadBackup(strings.NewReader("<smses><sms"))
	assert.Error(t, err)
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, inbox.MessageID("a", "b"), inbox.MessageID("a", "b"))
	assert.NotEqual(t, inbox.MessageID("ab", ""), inbox.MessageID("a", "b"))
}
