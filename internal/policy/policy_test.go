package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanReview(t *testing.T) {
	assert.True(t, CanReview([]string{RoleOfficer}))
	assert.True(t, CanReview([]string{RoleAdmin}))
	assert.True(t, CanReview([]string{RoleCitizen, RoleOfficer}))
	assert.False(t, CanReview([]string{RoleCitizen}))
	assert.False(t, CanReview([]string{RoleVoucher}))
	assert.False(t, CanReview(nil))
}

func TestCanAdminister(t *testing.T) {
	assert.True(t, CanAdminister([]string{RoleAdmin}))
	assert.False(t, CanAdminister([]string{RoleOfficer}))
	assert.False(t, CanAdminister(nil))
}
