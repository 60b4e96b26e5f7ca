package grpcinterface

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/soheilhy/cmux"
	"github.com/tdex-network/unitswap/internal/grpcutil"
	"github.com/tdex-network/unitswap/internal/interfaces"
	grpchandler "github.com/tdex-network/unitswap/internal/interfaces/grpc/handler"
	"github.com/tdex-network/unitswap/internal/interfaces/grpc/interceptor"
	httpinterface "github.com/tdex-network/unitswap/internal/interfaces/http"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

type ServiceOpts struct {
	Address        string
	SwapSvc        interfaces.SwapService
	Events         http.Handler
	AllowedOrigins []string
}

func (o ServiceOpts) validate() error {
	if ok := isValidAddress(o.Address); !ok {
		return fmt.Errorf("address is not valid: %s", o.Address)
	}
	if o.SwapSvc == nil {
		return fmt.Errorf("swap app service must not be null")
	}
	return nil
}

// Service serves the gRPC SwapService and the HTTP/JSON interface on the
// same port.
type Service struct {
	opts ServiceOpts

	grpcServer *grpc.Server
	httpServer *http.Server
	mux        cmux.CMux
	addr       net.Addr
}

func NewService(opts ServiceOpts) (*Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}
	return &Service{opts: opts}, nil
}

var _ interfaces.Service = (*Service)(nil)

func (s *Service) Start() error {
	grpcServer := grpc.NewServer(
		interceptor.UnaryInterceptor(), interceptor.StreamInterceptor(),
	)
	grpchandler.RegisterSwapServiceServer(
		grpcServer, grpchandler.NewSwapHandler(s.opts.SwapSvc),
	)

	httpServer := &http.Server{
		Handler: httpinterface.NewHandler(
			s.opts.SwapSvc, s.opts.Events, s.opts.AllowedOrigins,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mux, addr, err := grpcutil.ServeMux(s.opts.Address, grpcServer, httpServer)
	if err != nil {
		return err
	}

	s.grpcServer = grpcServer
	s.httpServer = httpServer
	s.mux = mux
	s.addr = addr

	log.Infof("gRPC and HTTP interfaces are listening on %s", addr)
	return nil
}

func (s *Service) Stop() {
	if s.mux == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Debug("stop http server")
	// nolint
	s.httpServer.Shutdown(ctx)

	log.Debug("stop grpc server")
	s.grpcServer.GracefulStop()

	log.Debug("stop mux")
	s.mux.Close()
	s.mux = nil
}

// Addr returns the address the service is listening on, nil if not started.
func (s *Service) Addr() net.Addr {
	return s.addr
}

func isValidAddress(addr string) bool {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil && host != "localhost" {
			return false
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port == 0 || (port > 1024 && port <= 65535)
}
