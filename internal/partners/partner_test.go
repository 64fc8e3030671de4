package partners_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reftrail/internal/config"
	"reftrail/internal/partners"
	"reftrail/internal/testsupport"
)

func TestMain(m *testing.M) {
	os.Setenv("REFTRAIL_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func TestCreatePartnerGeneratesCode(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-100", Name: "Alice"}
	require.NoError(t, partners.CreatePartner(db, &partner))

	assert.Len(t, partner.Code, 8)
	assert.NoError(t, partners.ValidateCode(partner.Code))
	assert.True(t, partner.IsActive)
	assert.Equal(t, int64(0), partner.TotalClicks)

	found, err := partners.GetPartnerByCode(db, partner.Code)
	require.NoError(t, err)
	assert.Equal(t, partner.ID, found.ID)
}

func TestCreatePartnerWithExplicitCode(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-101", Code: "spring24"}
	require.NoError(t, partners.CreatePartner(db, &partner))
	assert.Equal(t, "spring24", partner.Code)

	bad := partners.Partner{ExternalID: "tg-102", Code: "has space"}
	assert.Error(t, partners.CreatePartner(db, &bad))

	short := partners.Partner{ExternalID: "tg-103", Code: "ab"}
	assert.Error(t, partners.CreatePartner(db, &short))
}

func TestDuplicateExternalIDRejected(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	first := partners.Partner{ExternalID: "tg-104"}
	require.NoError(t, partners.CreatePartner(db, &first))

	dup := partners.Partner{ExternalID: "tg-104"}
	assert.Error(t, partners.CreatePartner(db, &dup))
}

func TestGetPartnerNotFound(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	var notFound *partners.PartnerNotFoundError

	_, err := partners.GetPartnerByCode(db, "missing1")
	require.Error(t, err)
	assert.ErrorAs(t, err, &notFound)

	_, err = partners.GetPartnerByID(db, 777)
	require.Error(t, err)
	assert.ErrorAs(t, err, &notFound)

	_, err = partners.GetPartnerByExternalID(db, "tg-nobody")
	require.Error(t, err)
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdatePartnerKeepsCodeImmutable(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-105", Name: "Before"}
	require.NoError(t, partners.CreatePartner(db, &partner))
	originalCode := partner.Code

	partner.Name = "After"
	partner.WhatsappPhone = "+34600111222"
	partner.Code = "hacked99"
	require.NoError(t, partners.UpdatePartner(db, &partner))

	stored, err := partners.GetPartnerByID(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Name)
	assert.Equal(t, "+34600111222", stored.WhatsappPhone)
	assert.Equal(t, originalCode, stored.Code)
}

func TestSetPartnerActive(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-106"}
	require.NoError(t, partners.CreatePartner(db, &partner))

	require.NoError(t, partners.SetPartnerActive(db, partner.ID, false))
	stored, err := partners.GetPartnerByID(db, partner.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	var notFound *partners.PartnerNotFoundError
	err = partners.SetPartnerActive(db, 888, false)
	require.Error(t, err)
	assert.ErrorAs(t, err, &notFound)
}

func TestBumpCounters(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-107"}
	require.NoError(t, partners.CreatePartner(db, &partner))

	at := time.Now().UTC()
	require.NoError(t, partners.BumpCounters(db, partner.ID, true, at))
	require.NoError(t, partners.BumpCounters(db, partner.ID, false, at.Add(time.Minute)))

	stored, err := partners.GetPartnerByID(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.TotalClicks)
	assert.Equal(t, int64(1), stored.UniqueVisitors)
	require.NotNil(t, stored.LastActivityAt)
}

func TestIncrementChannel(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	partner := partners.Partner{ExternalID: "tg-108"}
	require.NoError(t, partners.CreatePartner(db, &partner))

	require.NoError(t, partners.IncrementChannel(db, partner.ID, "whatsapp"))
	require.NoError(t, partners.IncrementChannel(db, partner.ID, "whatsapp"))
	require.NoError(t, partners.IncrementChannel(db, partner.ID, "phone"))

	channels, err := partners.ChannelClicks(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), channels["whatsapp"])
	assert.Equal(t, int64(1), channels["phone"])
}

func TestGenerateCodeAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := partners.GenerateCode()
		assert.Len(t, code, 8)
		assert.NoError(t, partners.ValidateCode(code))
	}
}
