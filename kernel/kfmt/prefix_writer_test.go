package kfmt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixWriterInjectsPrefixOnEachLine(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte("[nyxkernel] ")}

	n, err := w.Write([]byte("boot\nidle spawned\n"))
	require.Nil(t, err)
	require.Equal(t, len("boot\nidle spawned\n"), n)
	require.Equal(t, "[nyxkernel] boot\n[nyxkernel] idle spawned\n", sink.String())
}

func TestPrefixWriterHoldsPrefixAcrossPartialWrites(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte("[nyxkernel] ")}

	w.Write([]byte("boo"))
	w.Write([]byte("t\n"))
	require.Equal(t, "[nyxkernel] boot\n", sink.String())
}
