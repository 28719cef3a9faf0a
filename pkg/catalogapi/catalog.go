// Package catalogapi is the wire contract between the product catalog and its
// readers. Messages travel over gRPC encoded with the JSON codec registered
// below, so no generated stubs are needed on either side.
package catalogapi

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	ServiceName      = "catalog.v1.CatalogService"
	GetProductMethod = "/" + ServiceName + "/GetProduct"

	codecName = "json"
)

type GetProductRequest struct {
	ID string `json:"id"`
}

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	AvailableStock int32           `json:"available_stock"`
	Images         []string        `json:"images,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CatalogServer is implemented by the product service.
type CatalogServer interface {
	GetProduct(ctx context.Context, req *GetProductRequest) (*Product, error)
}

// CatalogClient is what readers of the catalog depend on.
type CatalogClient interface {
	GetProduct(ctx context.Context, req *GetProductRequest, opts ...grpc.CallOption) (*Product, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetProduct",
			Handler:    getProductHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalogapi",
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getProductHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetProductRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetProduct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetProductMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).GetProduct(ctx, req.(*GetProductRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type catalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) CatalogClient {
	return &catalogClient{cc: cc}
}

func (c *catalogClient) GetProduct(ctx context.Context, in *GetProductRequest, opts ...grpc.CallOption) (*Product, error) {
	out := new(Product)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, GetProductMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
