package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/llm"
)

func TestNormalizeStage1(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"spoken digit run", "东航两三勾两联系塔台", "东航2392联系塔台"},
		{"spoken stand", "幺洞幺机位有油迹", "101机位有油迹"},
		{"runway direction suffix", "跑道27左关闭", "跑道27L关闭"},
		{"runway direction prefix form", "02右跑道有鸟群", "02R跑道有鸟群"},
		{"spoken run then direction", "跑道两拐左发现外来物", "跑道27L发现外来物"},
		{"full width digits", "１４：３０在５０２机位", "14:30在502机位"},
		{"single numeral untouched", "大约三厘米的螺母", "大约三厘米的螺母"},
		{"plain text untouched", "CA1234在502机位发现滑油", "CA1234在502机位发现滑油"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeStage1(tc.in))
		})
	}
}

func TestNeedsDeepNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"long message", "东航2392报告紧急情况，燃油持续泄漏", true},
		{"short with aviation keyword", "跑道有油", true},
		{"short with spoken marker", "幺洞幺有油", true},
		{"short plain", "收到", false},
		{"short acknowledgement", "明白了", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, needsDeepNormalize(tc.in))
		})
	}
}

func TestNormalizerDeepPass(t *testing.T) {
	client := llm.NewScriptedClient("东航2392在101机位报告滑油滴漏")
	n := NewNormalizer(client, 0, nil)

	got, err := n.Normalize(context.Background(), "东航两三勾两在幺洞幺机位报告滑油滴漏")
	require.NoError(t, err)
	assert.Equal(t, "东航2392在101机位报告滑油滴漏", got)
	require.Equal(t, 1, client.CallCount())

	// The model sees the stage-1 text, not the raw input.
	req := client.Calls()[0]
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "东航2392在101机位报告滑油滴漏", last.Content)
}

func TestNormalizerFallsBackOnError(t *testing.T) {
	client := llm.NewScriptedClient() // exhausted immediately
	n := NewNormalizer(client, 0, nil)

	got, err := n.Normalize(context.Background(), "跑道两拐左发现外来物")
	require.Error(t, err)
	assert.Equal(t, "跑道27L发现外来物", got)
}

func TestNormalizerRejectsDegenerateReply(t *testing.T) {
	client := llm.NewScriptedClient("   ")
	n := NewNormalizer(client, 0, nil)

	got, err := n.Normalize(context.Background(), "跑道两拐左发现外来物")
	require.NoError(t, err)
	assert.Equal(t, "跑道27L发现外来物", got)
}

func TestNormalizerSkipsShortPlainText(t *testing.T) {
	client := llm.NewScriptedClient("should not be used")
	n := NewNormalizer(client, 0, nil)

	got, err := n.Normalize(context.Background(), "收到")
	require.NoError(t, err)
	assert.Equal(t, "收到", got)
	assert.Zero(t, client.CallCount())
}
