package cache_test

import (
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

func newReqCascade() *iconn.Cascade[memreq.Request] {
	return iconn.NewCascade[memreq.Request](8)
}

func newRetCascade() *iconn.Cascade[memreq.Return] {
	return iconn.NewCascade[memreq.Return](8)
}
