package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTargetMissing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no such bean", err: &NoSuchBeanError{BeanName: "Foo"}, want: true},
		{name: "send failed wrapping generic cause", err: &RequestSendFailedError{Cause: fmt.Errorf("boom")}, want: true},
		{
			name: "send failed wrapping auth failure is excluded",
			err:  &RequestSendFailedError{Cause: &SASLAuthFailureError{Reason: "bad credentials"}},
			want: false,
		},
		{name: "unrelated error", err: fmt.Errorf("some other failure"), want: false},
		{name: "selector error", err: &SelectorError{Selector: "x", Detail: "y"}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTargetMissing(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&NoSuchBeanError{BeanName: "Foo"}).Error(), "Foo")
	assert.Contains(t, (&SASLAuthFailureError{Reason: "bad creds"}).Error(), "bad creds")
	assert.Contains(t, (&RequestSendFailedError{Cause: fmt.Errorf("io timeout")}).Error(), "io timeout")
	assert.Contains(t, (&SelectorError{Selector: "ClusterNodeSelector", Detail: "empty"}).Error(), "ClusterNodeSelector")
}
