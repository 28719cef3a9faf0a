package catalogapi

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeServer struct {
	products map[string]*Product
}

func (f *fakeServer) GetProduct(_ context.Context, req *GetProductRequest) (*Product, error) {
	p, ok := f.products[req.ID]
	if !ok {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	return p, nil
}

func startServer(t *testing.T, srv CatalogServer) CatalogClient {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterCatalogServer(s, srv)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCatalogClient(conn)
}

func TestGetProduct_RoundTrip(t *testing.T) {
	client := startServer(t, &fakeServer{products: map[string]*Product{
		"P1": {ID: "P1", Name: "Mug", Price: decimal.RequireFromString("12.50"), AvailableStock: 5, Images: []string{"mug.png"}},
	}})

	p, err := client.GetProduct(context.Background(), &GetProductRequest{ID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, int32(5), p.AvailableStock)
	assert.Equal(t, []string{"mug.png"}, p.Images)
}

func TestGetProduct_NotFoundStatus(t *testing.T) {
	client := startServer(t, &fakeServer{products: map[string]*Product{}})

	_, err := client.GetProduct(context.Background(), &GetProductRequest{ID: "nope"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
