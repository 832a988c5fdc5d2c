package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := newRedisCache([]string{mr.Addr()}, false)
	assert.NoError(t, err)

	ctx := context.Background()
	type resolved struct {
		AuthMethod string `json:"auth_method"`
	}

	err = c.Set(ctx, "scope:TENANT::tn_1", &resolved{AuthMethod: "API_KEY"}, time.Minute)
	assert.NoError(t, err)

	var got resolved
	err = c.Get(ctx, "scope:TENANT::tn_1", &got)
	assert.NoError(t, err)
	assert.Equal(t, "API_KEY", got.AuthMethod)

	assert.NoError(t, c.Delete(ctx, "scope:TENANT::tn_1"))

	// A miss is not an error; the target is simply left untouched.
	var missed resolved
	assert.NoError(t, c.Get(ctx, "scope:TENANT::tn_1", &missed))
	assert.Empty(t, missed.AuthMethod)
}
