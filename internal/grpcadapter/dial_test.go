package grpcadapter

import "testing"

func TestConnPoolCloseOnEmptyPoolIsANoOp(t *testing.T) {
	p := NewConnPool()
	p.Close()
	p.Close()
}
