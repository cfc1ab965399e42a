package p2p

import (
	"context"
	"errors"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const (
	TopicSync    = "hni-trade-sync"
	protocolSync = protocol.ID("/hni-trade/sync/1.0.0")

	// Messages above this size go over direct streams instead of gossip.
	maxGossipSize = 512 << 10
	maxStreamSize = 64 << 20
)

// Libp2pNet gossips replication envelopes over a GossipSub topic. Oversized
// envelopes such as large state snapshots are unicast to every connected
// peer over a stream protocol.
type Libp2pNet struct {
	h     host.Host
	ps    *pubsub.PubSub
	log   *zap.SugaredLogger
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc

	muH     sync.RWMutex
	handler func(context.Context, []byte)
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	nctx, cancel := context.WithCancel(ctx)
	net := &Libp2pNet{h: h, ps: ps, log: log, ctx: nctx, cancel: cancel}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if net.topic, err = ps.Join(TopicSync); err != nil {
		net.Close()
		return nil, err
	}
	if net.sub, err = net.topic.Subscribe(); err != nil {
		net.Close()
		return nil, err
	}

	h.SetStreamHandler(protocolSync, net.handleStream)
	go net.readLoop(nctx)

	log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "addrs", h.Addrs())
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) SetHandler(h func(context.Context, []byte)) {
	n.muH.Lock()
	n.handler = h
	n.muH.Unlock()
}

func (n *Libp2pNet) Publish(ctx context.Context, msg []byte) error {
	if len(msg) <= maxGossipSize {
		return n.topic.Publish(ctx, msg)
	}
	return n.unicastAll(ctx, msg)
}

func (n *Libp2pNet) unicastAll(ctx context.Context, msg []byte) error {
	peers := n.h.Network().Peers()
	if len(peers) == 0 {
		return errors.New("no peers connected")
	}
	var errs []error
	for _, p := range peers {
		if err := n.send(ctx, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(peers) {
		return errors.Join(errs...)
	}
	return nil
}

func (n *Libp2pNet) send(ctx context.Context, p peer.ID, msg []byte) error {
	stream, err := n.h.NewStream(ctx, p, protocolSync)
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = stream.Write(msg)
	return err
}

func (n *Libp2pNet) Close() error {
	n.cancel()
	if n.sub != nil {
		n.sub.Cancel()
	}
	if n.topic != nil {
		n.topic.Close()
	}
	return n.h.Close()
}

// inbound

func (n *Libp2pNet) dispatch(ctx context.Context, data []byte) {
	n.muH.RLock()
	h := n.handler
	n.muH.RUnlock()
	if h != nil {
		h(ctx, data)
	}
}

func (n *Libp2pNet) readLoop(ctx context.Context) {
	self := n.h.ID()
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == self {
			continue
		}
		n.dispatch(ctx, msg.Data)
	}
}

func (n *Libp2pNet) handleStream(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(io.LimitReader(s, maxStreamSize))
	if err != nil {
		n.log.Debugw("sync_stream_read_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
		return
	}
	n.dispatch(n.ctx, data)
}
