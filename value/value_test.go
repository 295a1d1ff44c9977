package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom(t *testing.T) {
	assert.Equal(t, Number(3), From(3))
	assert.Equal(t, Number(2.5), From(2.5))
	assert.Equal(t, Text("on"), From("on"))
	assert.Equal(t, On, From(true))
	assert.Equal(t, Off, From(false))
	assert.True(t, From(nil).IsNull())
	assert.True(t, From([]string{"x"}).IsNull())
	assert.True(t, From(map[string]interface{}{"red": 255}).IsObject())
}

func TestFloat(t *testing.T) {
	f, ok := Text(" 42.5 ").Float()
	require.True(t, ok)
	assert.Equal(t, 42.5, f)

	f, ok = Text("50%").Float()
	require.True(t, ok)
	assert.Equal(t, 50.0, f)

	f, ok = Text("-4.5e1 degrees").Float()
	require.True(t, ok)
	assert.Equal(t, -45.0, f)

	_, ok = Text("on").Float()
	assert.False(t, ok)

	_, ok = Text("level 5").Float()
	assert.False(t, ok)

	_, ok = Null.Float()
	assert.False(t, ok)

	_, ok = Object(map[string]interface{}{"level": 1}).Float()
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Number(10), Number(10)))
	assert.False(t, Equal(Number(10), Text("10")))
	assert.True(t, Equal(Text("on"), Text("on")))
	assert.False(t, Equal(Null, Null))
	assert.True(t, Equal(
		Object(map[string]interface{}{"red": 1.0}),
		Object(map[string]interface{}{"red": 1.0}),
	))
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Number(15), Number(10))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(Text("off"), Text("on"))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(Number(15), Text("10"))
	assert.False(t, ok)

	_, ok = Compare(Null, Null)
	assert.False(t, ok)
}

func TestChanged(t *testing.T) {
	tests := []struct {
		name             string
		current, desired Value
		want             bool
	}{
		{"same number", Number(50), Number(50), false},
		{"different number", Number(50), Number(60), true},
		{"numeric text vs number", Text("50"), Number(50), false},
		{"percent text vs number", Text("50%"), Number(50), false},
		{"on vs on", On, On, false},
		{"off vs on", Off, On, true},
		{"text vs number", On, Number(50), true},
		{"null current", Null, Number(1), true},
		{"null both", Null, Null, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Changed(tt.current, tt.desired))
		})
	}
}

func TestJSON(t *testing.T) {
	var got struct {
		A Value `json:"a"`
		B Value `json:"b"`
		C Value `json:"c"`
		D Value `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 5, "b": "on", "c": {"red": 255}, "d": null}`), &got))
	assert.Equal(t, Number(5), got.A)
	assert.Equal(t, On, got.B)
	assert.True(t, got.C.IsObject())
	assert.True(t, got.D.IsNull())

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 5, "b": "on", "c": {"red": 255}, "d": null}`, string(out))
}
