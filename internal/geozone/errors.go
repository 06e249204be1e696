package geozone

import "errors"

// 错误分类：调用方通过 errors.Is 区分；零命中不是错误
var (
	// 入参非法（空账号、非法围栏定义），调用方缺陷，不应重试
	ErrInvalidInput = errors.New("geozone: invalid input")
	// 指定的 geozoneID 在账号下不存在，区别于“没有几何命中”
	ErrNotFound = errors.New("geozone: not found")
	// 存储/查询失败，基础设施问题，可按调用方策略重试
	ErrStoreUnavailable = errors.New("geozone: lookup failed")
	// 该类型的判定器未安装，属于配置状态
	ErrUnsupportedZoneType = errors.New("geozone: unsupported zone type")
)
