package mutex

import "github.com/ceyewan/coord/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("mutex: config is nil")

	// ErrConnectorNil 所选后端缺少连接器
	ErrConnectorNil = xerrors.New("mutex: connector is nil")

	// ErrUnsupportedDriver 未知的后端类型
	ErrUnsupportedDriver = xerrors.New("mutex: unsupported driver")

	// ErrPathEmpty 锁路径为空
	ErrPathEmpty = xerrors.New("mutex: path is empty")

	// ErrNotOwner 当前 goroutine 并不持有该锁
	ErrNotOwner = xerrors.New("mutex: not held by current goroutine")

	// ErrOwnershipLost 远端锁已过期或被他人持有
	ErrOwnershipLost = xerrors.New("mutex: ownership lost")

	// ErrCircuitOpen 熔断器打开，未访问后端
	ErrCircuitOpen = xerrors.New("mutex: circuit breaker is open")
)
