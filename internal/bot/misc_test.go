package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0s"},
		{in: -time.Second, want: "0s"},
		{in: 59 * time.Second, want: "59s"},
		{in: 12*time.Minute + 5*time.Second, want: "12m 5s"},
		{in: 3*time.Hour + 12*time.Minute + 40*time.Second, want: "3h 12m"},
		{in: 50*time.Hour + 7*time.Minute, want: "2d 2h 7m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUptime(tt.in))
		})
	}
}

func TestCooldowns(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("disabled", func(t *testing.T) {
		c := NewCooldowns(0)
		assert.Zero(t, c.Wait("ping:1", now))
		assert.Zero(t, c.Wait("ping:1", now))
	})

	t.Run("per key", func(t *testing.T) {
		c := NewCooldowns(5 * time.Second)
		assert.Zero(t, c.Wait("ping:1", now))

		wait := c.Wait("ping:1", now.Add(time.Second))
		assert.Greater(t, wait, 3*time.Second)
		assert.LessOrEqual(t, wait, 4*time.Second+time.Millisecond)

		assert.Zero(t, c.Wait("ping:2", now.Add(time.Second)))
		assert.Zero(t, c.Wait("sync:1", now.Add(time.Second)))

		assert.Zero(t, c.Wait("ping:1", now.Add(6*time.Second)))
	})

	t.Run("refused use is not counted", func(t *testing.T) {
		c := NewCooldowns(5 * time.Second)
		require.Zero(t, c.Wait("k", now))
		for i := 1; i <= 4; i++ {
			assert.NotZero(t, c.Wait("k", now.Add(time.Duration(i)*time.Second)))
		}
		assert.Zero(t, c.Wait("k", now.Add(6*time.Second)))
	})

	t.Run("set interval resets", func(t *testing.T) {
		c := NewCooldowns(time.Minute)
		require.Zero(t, c.Wait("k", now))
		require.NotZero(t, c.Wait("k", now))

		c.SetInterval(0)
		assert.Zero(t, c.Wait("k", now))
	})
}

type mockOverwriter struct {
	mock.Mock
}

func (m *mockOverwriter) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID, commands)
	return commands, args.Error(1)
}

func TestDeployCommands(t *testing.T) {
	t.Run("guild", func(t *testing.T) {
		cfg := testConfig()
		cfg.Discord.GuildID = "g-1"

		o := &mockOverwriter{}
		o.On("ApplicationCommandBulkOverwrite", "app-1", "g-1", mock.MatchedBy(func(defs []*discordgo.ApplicationCommand) bool {
			return len(defs) == 4
		})).Return(nil, nil).Once()

		require.NoError(t, deployCommands(o, cfg, testLogger()))
		o.AssertExpectations(t)
	})

	t.Run("global", func(t *testing.T) {
		o := &mockOverwriter{}
		o.On("ApplicationCommandBulkOverwrite", "app-1", "", mock.Anything).Return(nil, nil).Once()

		require.NoError(t, deployCommands(o, testConfig(), testLogger()))
		o.AssertExpectations(t)
	})

	t.Run("api failure", func(t *testing.T) {
		o := &mockOverwriter{}
		o.On("ApplicationCommandBulkOverwrite", "app-1", "", mock.Anything).Return(nil, errors.New("rate limited")).Once()

		err := deployCommands(o, testConfig(), testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("missing client id", func(t *testing.T) {
		cfg := testConfig()
		cfg.Discord.ClientID = ""
		assert.Error(t, deployCommands(&mockOverwriter{}, cfg, testLogger()))
	})

	t.Run("missing token", func(t *testing.T) {
		assert.Error(t, DeployCommands(testConfig(), testLogger()))
	})
}
