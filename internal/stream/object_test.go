package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string   `yaml:"name"`
	Age   int      `yaml:"age"`
	Tags  []string `yaml:"tags,omitempty"`
	Inner struct {
		City string `yaml:"city"`
	} `yaml:"inner"`
}

func TestObjectFromRecord(t *testing.T) {
	p := profile{Name: "alice", Age: 30}
	p.Inner.City = "Paris"

	obj, err := ObjectFromRecord(p)

	require.NoError(t, err)
	assert.Equal(t, "alice", obj["name"])
	assert.Equal(t, 30, obj["age"])
	assert.NotContains(t, obj, "tags")
	assert.Equal(t, map[string]any{"city": "Paris"}, obj["inner"])
}

func TestObjectFromRecord_RejectsScalars(t *testing.T) {
	_, err := ObjectFromRecord(42)
	assert.Error(t, err)
}

func TestObjectStream_RoundTrip(t *testing.T) {
	o, err := NewObjectFromRecord(profile{Name: "bob", Age: 41})
	require.NoError(t, err)

	o.Set("age", 42)
	o.Set("tags", []string{"admin"})

	var out profile
	require.NoError(t, o.Decode(&out))
	assert.Equal(t, "bob", out.Name)
	assert.Equal(t, 42, out.Age)
	assert.Equal(t, []string{"admin"}, out.Tags)
}

func TestObjectStream_TypedGetters(t *testing.T) {
	o := NewObject(Object{"name": "carol", "age": 7, "big": int64(9)})

	name, ok := o.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "carol", name)

	_, ok = o.GetString("age")
	assert.False(t, ok)

	age, ok := o.GetInt("age")
	assert.True(t, ok)
	assert.Equal(t, 7, age)

	big, ok := o.GetInt("big")
	assert.True(t, ok)
	assert.Equal(t, 9, big)

	_, ok = o.GetInt("missing")
	assert.False(t, ok)
}

func TestObjectStream_SettersAndDo(t *testing.T) {
	o := NewObject(Object{"status": "draft"})

	require.NoError(t, o.Do("setStatus", "published"))

	status, _ := o.GetString("status")
	assert.Equal(t, "published", status)
}
