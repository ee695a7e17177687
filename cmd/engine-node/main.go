// Package main 提供 engine-node 命令行入口
//
// 启动一个带发现覆盖网的传输节点。常见用法：
//
//	# 启动引导节点（打印连接票据）
//	engine-node -listen 0.0.0.0:4001
//
//	# 凭票据加入网络并写入键值
//	engine-node -bootstrap dep2p://... -put greeting=hello
//
//	# 从网络读取键值
//	engine-node -bootstrap dep2p://... -get greeting
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	enginetransport "github.com/dep2p/go-engine-transport"
	"github.com/dep2p/go-engine-transport/internal/discovery/dht"
	"github.com/dep2p/go-engine-transport/internal/util/logger"
)

var log = logger.Logger("cmd")

var (
	listenAddr   = flag.String("listen", "0.0.0.0:0", "UDP 绑定地址（端口 0 = 随机端口）")
	identityFile = flag.String("identity", "", "身份密钥文件路径（默认临时身份）")
	dataDir      = flag.String("data-dir", "", "键值持久化目录（默认内存存储）")
	bootstrap    = flag.String("bootstrap", "", "引导节点连接票据")
	putKV        = flag.String("put", "", "写入键值，格式 key=value")
	getKey       = flag.String("get", "", "读取键值")
	timeout      = flag.Duration("timeout", 30*time.Second, "单次操作超时")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine-node:", err)
		os.Exit(1)
	}
}

func run() error {
	opts := []enginetransport.Option{
		enginetransport.WithListenAddr(*listenAddr),
	}
	if *identityFile != "" {
		opts = append(opts, enginetransport.WithIdentityPath(*identityFile))
	}

	tp, err := enginetransport.New(opts...)
	if err != nil {
		return err
	}
	defer tp.Close()

	node, err := dht.New(tp, dht.Config{DataDir: *dataDir})
	if err != nil {
		return err
	}
	defer node.Close()

	if err := node.Start(); err != nil {
		return err
	}

	fmt.Println("节点:", tp.LocalMultiaddr())
	ticket, err := tp.Ticket()
	if err != nil {
		return err
	}
	fmt.Println("票据:", ticket)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *bootstrap != "" {
		if err := node.Bootstrap(ctx, *bootstrap); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		log.Info("joined overlay", "routing_size", node.RoutingSize())
	}

	if *putKV != "" {
		key, value, ok := strings.Cut(*putKV, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid -put %q, want key=value", *putKV)
		}
		if err := node.Put(ctx, key, []byte(value)); err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		fmt.Printf("已写入 %s\n", key)
	}

	if *getKey != "" {
		value, err := node.Get(ctx, *getKey)
		if err != nil {
			return fmt.Errorf("get %q: %w", *getKey, err)
		}
		fmt.Printf("%s = %s\n", *getKey, value)
	}

	// 没有一次性操作时常驻服务
	if *putKV == "" && *getKey == "" {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		fmt.Println("按 Ctrl+C 退出")
		<-sigCh
		fmt.Println("正在退出...")
	}

	return nil
}
