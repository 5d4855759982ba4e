package redisstore

import "github.com/redis/go-redis/v9"

// useCreditScript atomically spends one credit and slides the expiry.
//
// KEYS[1] = session hash
// ARGV[1] = last_used (RFC3339Nano)
// ARGV[2] = ttl in milliseconds
//
// Returns the remaining credits, -1 when none are left, -2 when the
// session does not exist.
var useCreditScript = redis.NewScript(`
local credits = redis.call('HGET', KEYS[1], 'credits')
if not credits then
  return -2
end
if tonumber(credits) <= 0 then
  return -1
end
local left = redis.call('HINCRBY', KEYS[1], 'credits', -1)
redis.call('HSET', KEYS[1], 'last_used', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return left
`)
