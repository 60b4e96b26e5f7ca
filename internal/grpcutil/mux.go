package grpcutil

import (
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
)

// ServeMux serves the given grpc server and multiplexes on the same tcp port
// the given http server. Requests with content-type application/grpc* are
// routed to the grpc server, any other HTTP/1.x request to the http one.
func ServeMux(
	address string, grpcServer *grpc.Server, httpServer *http.Server,
) (cmux.CMux, net.Addr, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, nil, err
	}

	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(
		cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"),
	)
	httpL := mux.Match(cmux.HTTP1Fast())

	go func() {
		if err := grpcServer.Serve(grpcL); err != nil {
			log.WithError(err).Debug("grpc server stopped")
		}
	}()
	go func() {
		if err := httpServer.Serve(httpL); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Debug("http server stopped")
		}
	}()
	go func() {
		if err := mux.Serve(); err != nil {
			log.WithError(err).Debug("mux stopped")
		}
	}()

	return mux, lis.Addr(), nil
}
